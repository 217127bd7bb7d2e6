package ast

type ValType byte

const (
	ValTypeI32 ValType = 0x7F
	ValTypeI64 ValType = 0x7E
	ValTypeF32 ValType = 0x7D
	ValTypeF64 ValType = 0x7C
)

const (
	KindFunc   byte = 0
	KindMemory byte = 2
)

const (
	SectionType   byte = 1
	SectionImport byte = 2
	SectionFunc   byte = 3
	SectionMemory byte = 5
	SectionExport byte = 7
	SectionStart  byte = 8
	SectionCode   byte = 10
	SectionData   byte = 11
)

const FuncTypeMarker byte = 0x60

// Module is the parsed form of one (module ...) form.
type Module struct {
	Start    *uint32
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []Limits
	Exports  []Export
	Data     []DataSegment
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range ft.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// Import is a function or memory import. TypeIdx is set for functions,
// Mem for memories.
type Import struct {
	Mem     *Limits
	Module  string
	Name    string
	TypeIdx uint32
	Kind    byte
}

type Func struct {
	Locals  []ValType
	Code    []Instr
	TypeIdx uint32
}

type Limits struct {
	Max *uint32
	Min uint32
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

type DataSegment struct {
	Init   []byte
	Offset int32
}

// Instr is one encoded instruction: opcode followed by immediates already in
// their binary form.
type Instr struct {
	Imm    []byte
	Opcode byte
}
