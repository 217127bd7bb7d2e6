package encoder

import (
	"bytes"
	"math"
	"testing"
)

func TestBufferLEB128(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Buffer)
		want  []byte
	}{
		{"u32_zero", func(b *Buffer) { b.U32(0) }, []byte{0x00}},
		{"u32_one_group", func(b *Buffer) { b.U32(127) }, []byte{0x7f}},
		{"u32_two_groups", func(b *Buffer) { b.U32(128) }, []byte{0x80, 0x01}},
		{"u32_three_groups", func(b *Buffer) { b.U32(624485) }, []byte{0xe5, 0x8e, 0x26}},
		{"u32_max", func(b *Buffer) { b.U32(math.MaxUint32) }, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
		{"i64_minus_one", func(b *Buffer) { b.I64(-1) }, []byte{0x7f}},
		{"i64_63", func(b *Buffer) { b.I64(63) }, []byte{0x3f}},
		{"i64_64", func(b *Buffer) { b.I64(64) }, []byte{0xc0, 0x00}},
		{"i64_minus_64", func(b *Buffer) { b.I64(-64) }, []byte{0x40}},
		{"i64_minus_65", func(b *Buffer) { b.I64(-65) }, []byte{0xbf, 0x7f}},
		{"i32_minus_123456", func(b *Buffer) { b.I32(-123456) }, []byte{0xc0, 0xbb, 0x78}},
		{"i32_min", func(b *Buffer) { b.I32(math.MinInt32) }, []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Buffer
			tt.write(&b)
			if !bytes.Equal(b.Bytes, tt.want) {
				t.Errorf("got % x, want % x", b.Bytes, tt.want)
			}
		})
	}
}

func TestBufferComposite(t *testing.T) {
	var b Buffer
	max := uint32(2)
	b.Name("env")
	b.Limits(1, nil)
	b.Limits(1, &max)
	b.F32(1)

	want := []byte{0x03, 'e', 'n', 'v', 0x00, 0x01, 0x01, 0x01, 0x02, 0x00, 0x00, 0x80, 0x3f}
	if !bytes.Equal(b.Bytes, want) {
		t.Errorf("got % x, want % x", b.Bytes, want)
	}
}
