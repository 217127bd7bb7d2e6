package encoder

import (
	"github.com/wippyai/wasm-enclave/wat/internal/ast"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00} // magic + version

const (
	opEnd      byte = 0x0B
	opI32Const byte = 0x41
)

// Encode emits the binary module. Sections are written in the order the
// binary format requires and empty sections are omitted.
func Encode(m *ast.Module) []byte {
	buf := &Buffer{}
	buf.Raw(header)

	if len(m.Types) > 0 {
		encodeTypeSection(buf, m)
	}
	if len(m.Imports) > 0 {
		encodeImportSection(buf, m)
	}
	if len(m.Funcs) > 0 {
		encodeFuncSection(buf, m)
	}
	if len(m.Memories) > 0 {
		encodeMemorySection(buf, m)
	}
	if len(m.Exports) > 0 {
		encodeExportSection(buf, m)
	}
	if m.Start != nil {
		sec := &Buffer{}
		sec.U32(*m.Start)
		writeSection(buf, ast.SectionStart, sec)
	}
	if len(m.Funcs) > 0 {
		encodeCodeSection(buf, m)
	}
	if len(m.Data) > 0 {
		encodeDataSection(buf, m)
	}

	return buf.Bytes
}

func writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.Byte(id)
	buf.U32(uint32(len(content.Bytes)))
	buf.Raw(content.Bytes)
}

func encodeTypeSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		sec.Byte(ast.FuncTypeMarker)
		sec.U32(uint32(len(ft.Params)))
		for _, p := range ft.Params {
			sec.Byte(byte(p))
		}
		sec.U32(uint32(len(ft.Results)))
		for _, r := range ft.Results {
			sec.Byte(byte(r))
		}
	}
	writeSection(buf, ast.SectionType, sec)
}

func encodeImportSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		sec.Name(imp.Module)
		sec.Name(imp.Name)
		sec.Byte(imp.Kind)
		switch imp.Kind {
		case ast.KindFunc:
			sec.U32(imp.TypeIdx)
		case ast.KindMemory:
			sec.Limits(imp.Mem.Min, imp.Mem.Max)
		}
	}
	writeSection(buf, ast.SectionImport, sec)
}

func encodeFuncSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		sec.U32(f.TypeIdx)
	}
	writeSection(buf, ast.SectionFunc, sec)
}

func encodeMemorySection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Memories)))
	for _, mem := range m.Memories {
		sec.Limits(mem.Min, mem.Max)
	}
	writeSection(buf, ast.SectionMemory, sec)
}

func encodeExportSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		sec.Name(e.Name)
		sec.Byte(e.Kind)
		sec.U32(e.Idx)
	}
	writeSection(buf, ast.SectionExport, sec)
}

func encodeCodeSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		body := &Buffer{}
		encodeLocals(body, f.Locals)
		for _, instr := range f.Code {
			body.Byte(instr.Opcode)
			body.Raw(instr.Imm)
		}
		body.Byte(opEnd)
		sec.U32(uint32(len(body.Bytes)))
		sec.Raw(body.Bytes)
	}
	writeSection(buf, ast.SectionCode, sec)
}

// encodeLocals run-length encodes consecutive locals of the same type.
func encodeLocals(body *Buffer, locals []ast.ValType) {
	type run struct {
		n   uint32
		typ ast.ValType
	}
	var runs []run
	for _, l := range locals {
		if len(runs) > 0 && runs[len(runs)-1].typ == l {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{n: 1, typ: l})
	}
	body.U32(uint32(len(runs)))
	for _, r := range runs {
		body.U32(r.n)
		body.Byte(byte(r.typ))
	}
}

func encodeDataSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.U32(uint32(len(m.Data)))
	for _, d := range m.Data {
		sec.U32(0) // active, memory 0
		sec.Byte(opI32Const)
		sec.I32(d.Offset)
		sec.Byte(opEnd)
		sec.U32(uint32(len(d.Init)))
		sec.Raw(d.Init)
	}
	writeSection(buf, ast.SectionData, sec)
}
