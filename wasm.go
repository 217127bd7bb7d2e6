package wasmenclave

import (
	"bytes"
	"context"

	"github.com/tetratelabs/wazero/api"
)

// Format identifies the encoding of a module source.
type Format uint8

const (
	FormatBinary Format = iota // canonical wasm binary
	FormatText                 // WAT text, translated before compilation
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatText:
		return "text"
	}
	return "unknown"
}

// Source is one module artifact. It is read-only once constructed.
type Source struct {
	name   string
	data   []byte
	format Format
}

// NewSource copies data so later changes by the caller are not observed.
func NewSource(name string, format Format, data []byte) Source {
	return Source{name: name, format: format, data: bytes.Clone(data)}
}

// TextSource wraps WAT text.
func TextSource(name, text string) Source {
	return Source{name: name, format: FormatText, data: []byte(text)}
}

// BinarySource wraps a wasm binary.
func BinarySource(name string, wasm []byte) Source {
	return NewSource(name, FormatBinary, wasm)
}

func (s Source) Name() string   { return s.name }
func (s Source) Format() Format { return s.format }
func (s Source) Len() int       { return len(s.data) }

// Bytes returns a copy of the source contents.
func (s Source) Bytes() []byte { return bytes.Clone(s.data) }

// Loader supplies the module the enclave hosts. Where it comes from is up to
// the implementation.
type Loader interface {
	LoadSource(ctx context.Context) (Source, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Source, error)

func (f LoaderFunc) LoadSource(ctx context.Context) (Source, error) { return f(ctx) }

// ValueType is a core wasm value type.
type ValueType = api.ValueType

const (
	ValueTypeI32 = api.ValueTypeI32
	ValueTypeI64 = api.ValueTypeI64
	ValueTypeF32 = api.ValueTypeF32
	ValueTypeF64 = api.ValueTypeF64
)

// Value is a typed core wasm value as passed to and returned from exports.
type Value struct {
	Bits uint64
	Type ValueType
}

func I32(v int32) Value   { return Value{Type: ValueTypeI32, Bits: api.EncodeI32(v)} }
func I64(v int64) Value   { return Value{Type: ValueTypeI64, Bits: api.EncodeI64(v)} }
func F32(v float32) Value { return Value{Type: ValueTypeF32, Bits: api.EncodeF32(v)} }
func F64(v float64) Value { return Value{Type: ValueTypeF64, Bits: api.EncodeF64(v)} }

func (v Value) I32() int32   { return api.DecodeI32(v.Bits) }
func (v Value) I64() int64   { return int64(v.Bits) }
func (v Value) F32() float32 { return api.DecodeF32(v.Bits) }
func (v Value) F64() float64 { return api.DecodeF64(v.Bits) }

// TypeNames renders a value type list like "(i32, i64)".
func TypeNames(types []ValueType) string {
	var b bytes.Buffer
	b.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
	return b.String()
}

// SameTypes reports whether two value type lists are identical.
func SameTypes(a, b []ValueType) bool {
	return bytes.Equal(a, b)
}
