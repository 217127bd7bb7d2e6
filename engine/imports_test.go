package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"reflect"
	"testing"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/errors"
)

// section frames body as a wasm section with a one-byte size.
func section(id byte, body ...byte) []byte {
	return append([]byte{id, byte(len(body))}, body...)
}

func module(sections ...[]byte) []byte {
	bin := append([]byte(nil), wasmHeader...)
	for _, s := range sections {
		bin = append(bin, s...)
	}
	return bin
}

func importEntry(mod, name string, kind externKind, desc ...byte) []byte {
	b := append([]byte{byte(len(mod))}, mod...)
	b = append(b, byte(len(name)))
	b = append(b, name...)
	b = append(b, byte(kind))
	return append(b, desc...)
}

func importSection(entries ...[]byte) []byte {
	body := []byte{byte(len(entries))}
	for _, e := range entries {
		body = append(body, e...)
	}
	return section(sectionImport, body...)
}

var (
	// (type (func))
	emptyFuncType = section(sectionType, 0x01, 0x60, 0x00, 0x00)
	// (import "env" "g" (global i32))
	globalImportBinary = module(importSection(importEntry("env", "g", externGlobal, 0x7f, 0x00)))
	// (import "env" "t" (table 1 funcref))
	tableImportBinary = module(importSection(importEntry("env", "t", externTable, 0x70, 0x00, 0x01)))
)

func TestScanImports(t *testing.T) {
	tests := []struct {
		name string
		bin  []byte
		want []declaredImport
	}{
		{"empty_module", module(), nil},
		{"no_import_section", module(emptyFuncType, section(0x03, 0x01, 0x00)), nil},
		{"global", globalImportBinary, []declaredImport{{"env", "g", externGlobal}}},
		{"table", tableImportBinary, []declaredImport{{"env", "t", externTable}}},
		{
			"mixed",
			module(
				section(sectionCustom, 0x01, 'x', 0xaa, 0xbb),
				emptyFuncType,
				importSection(
					importEntry("env", "f", externFunc, 0x00),
					importEntry("env", "m", externMemory, 0x01, 0x01, 0x80, 0x01),
					importEntry("host", "g", externGlobal, 0x7e, 0x01),
				),
			),
			[]declaredImport{
				{"env", "f", externFunc},
				{"env", "m", externMemory},
				{"host", "g", externGlobal},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scanImports(tt.bin)
			if err != nil {
				t.Fatalf("scanImports: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScanImportsMalformed(t *testing.T) {
	tests := []struct {
		name string
		bin  []byte
	}{
		{"short_header", wasmHeader[:4]},
		{"section_past_end", module([]byte{sectionImport, 0x10, 0x01})},
		{"entry_cut", module(section(sectionImport, 0x01, 0x03, 'e', 'n'))},
		{"count_too_large", module(section(sectionImport, 0x05, 0x00))},
		{"unknown_kind", module(importSection(importEntry("env", "x", externKind(0x09))))},
		{"leb_overflow", module(section(sectionImport, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := scanImports(tt.bin); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadU32(t *testing.T) {
	r := bytes.NewReader([]byte{0xe5, 0x8e, 0x26})
	got, err := readU32(r)
	if err != nil || got != 624485 {
		t.Errorf("readU32 = %d, %v; want 624485", got, err)
	}
	if _, err := readU32(bytes.NewReader([]byte{0x80})); !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated: got %v, want ErrUnexpectedEOF", err)
	}
	if _, err := readU32(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00})); !stderrors.Is(err, errLEBOverflow) {
		t.Errorf("six groups: got %v, want overflow", err)
	}
}

func TestCompileRejectsNonFunctionImports(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	tests := []struct {
		name   string
		bin    []byte
		module string
		field  string
	}{
		{"global", globalImportBinary, "env", "g"},
		{"table", tableImportBinary, "env", "t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := e.Compile(ctx, wasmenclave.BinarySource(tt.name, tt.bin), BackendAuto)
			if err == nil {
				_ = mod.Close(ctx)
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.ErrUnsupported) {
				t.Fatalf("got %v, want ErrUnsupported", err)
			}
			var werr *errors.Error
			if !stderrors.As(err, &werr) {
				t.Fatalf("got %T, want *errors.Error", err)
			}
			if werr.Phase != errors.PhaseCompile {
				t.Errorf("phase = %v, want compile", werr.Phase)
			}
			if werr.Namespace != tt.module || werr.Name != tt.field {
				t.Errorf("import = %s#%s, want %s#%s", werr.Namespace, werr.Name, tt.module, tt.field)
			}
		})
	}
}

func TestCompileAcceptsFunctionImports(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	bin := module(emptyFuncType, importSection(importEntry("env", "f", externFunc, 0x00)))
	mod, err := e.Compile(ctx, wasmenclave.BinarySource("funcs", bin), BackendAuto)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer mod.Close(ctx)
}
