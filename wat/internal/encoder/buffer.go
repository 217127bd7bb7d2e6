package encoder

import (
	"encoding/binary"
	"math"
)

// Buffer accumulates binary-format output. Integers are LEB128, floats
// little-endian IEEE 754.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) Byte(v byte)   { b.Bytes = append(b.Bytes, v) }
func (b *Buffer) Raw(v []byte)  { b.Bytes = append(b.Bytes, v...) }
func (b *Buffer) I32(v int32)   { b.I64(int64(v)) }
func (b *Buffer) F32(v float32) { b.Bytes = binary.LittleEndian.AppendUint32(b.Bytes, math.Float32bits(v)) }
func (b *Buffer) F64(v float64) { b.Bytes = binary.LittleEndian.AppendUint64(b.Bytes, math.Float64bits(v)) }

// U32 writes v as unsigned LEB128, which is the same encoding as a Go uvarint.
func (b *Buffer) U32(v uint32) {
	b.Bytes = binary.AppendUvarint(b.Bytes, uint64(v))
}

// I64 writes v as signed LEB128. Encoding stops once the remaining value is
// pure sign extension of the last group's bit 6.
func (b *Buffer) I64(v int64) {
	for {
		group := byte(v) & 0x7f
		v >>= 7
		signClear := group&0x40 == 0
		if (v == 0 && signClear) || (v == -1 && !signClear) {
			b.Bytes = append(b.Bytes, group)
			return
		}
		b.Bytes = append(b.Bytes, group|0x80)
	}
}

// Name writes a length-prefixed UTF-8 string.
func (b *Buffer) Name(s string) {
	b.U32(uint32(len(s)))
	b.Bytes = append(b.Bytes, s...)
}

// Limits writes a limits pair, flag 0x01 when max is present.
func (b *Buffer) Limits(min uint32, max *uint32) {
	if max == nil {
		b.Byte(0x00)
		b.U32(min)
		return
	}
	b.Byte(0x01)
	b.U32(min)
	b.U32(*max)
}
