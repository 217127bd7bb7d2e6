package enclave

import (
	"unsafe"
)

// Buffer is an enclave-owned copy of a validated request region. It is valid
// only for the duration of one Processor call.
type Buffer struct {
	data []byte
}

// copyRegion makes the owned copy. The caller must have validated ptr and
// length; the temporary view never escapes this function.
func copyRegion(ptr unsafe.Pointer, length uintptr) *Buffer {
	data := make([]byte, length)
	if length > 0 {
		copy(data, unsafe.Slice((*byte)(ptr), length))
	}
	return &Buffer{data: data}
}

// NewBuffer copies b into a new Buffer.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), b...)}
}

// Bytes returns the buffer contents. The slice is zeroed by Wipe.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Len() int { return len(b.data) }

// Wipe zeroes and releases the contents.
func (b *Buffer) Wipe() {
	clear(b.data)
	b.data = nil
}
