package engine

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-enclave/errors"
)

// externKind is the kind byte of an import descriptor.
type externKind byte

const (
	externFunc   externKind = 0x00
	externTable  externKind = 0x01
	externMemory externKind = 0x02
	externGlobal externKind = 0x03
	externTag    externKind = 0x04
)

func (k externKind) String() string {
	switch k {
	case externFunc:
		return "function"
	case externTable:
		return "table"
	case externMemory:
		return "memory"
	case externGlobal:
		return "global"
	case externTag:
		return "tag"
	}
	return fmt.Sprintf("kind(0x%02x)", byte(k))
}

const (
	sectionCustom = 0x00
	sectionType   = 0x01
	sectionImport = 0x02
)

var errLEBOverflow = stderrors.New("leb128: overflow")

// declaredImport is one entry of a binary's import section.
type declaredImport struct {
	Module string
	Name   string
	Kind   externKind
}

// scanImports lists every import the binary declares, whatever its kind.
// Sections after the import section are not read.
func scanImports(bin []byte) ([]declaredImport, error) {
	if len(bin) < len(wasmHeader) {
		return nil, io.ErrUnexpectedEOF
	}
	r := bytes.NewReader(bin[len(wasmHeader):])

	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		size, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("section %d: %w", id, io.ErrUnexpectedEOF)
		}

		switch id {
		case sectionCustom, sectionType:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, err
			}
		case sectionImport:
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, err
			}
			imports, err := readImportSection(bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
			return imports, nil
		default:
			// Imports precede every other known section.
			return nil, nil
		}
	}
}

func readImportSection(r *bytes.Reader) ([]declaredImport, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int64(count) > int64(r.Len()) {
		return nil, fmt.Errorf("%d imports in %d bytes", count, r.Len())
	}

	imports := make([]declaredImport, 0, count)
	for i := uint32(0); i < count; i++ {
		module, err := readName(r)
		if err != nil {
			return nil, err
		}
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if err := skipImportDesc(r, externKind(kind)); err != nil {
			return nil, fmt.Errorf("import %s#%s: %w", module, name, err)
		}
		imports = append(imports, declaredImport{Module: module, Name: name, Kind: externKind(kind)})
	}
	return imports, nil
}

func skipImportDesc(r *bytes.Reader, kind externKind) error {
	switch kind {
	case externFunc:
		_, err := readU32(r)
		return err
	case externTable:
		if _, err := r.ReadByte(); err != nil { // reftype
			return err
		}
		return skipLimits(r)
	case externMemory:
		return skipLimits(r)
	case externGlobal:
		// valtype then mutability
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		_, err := r.ReadByte()
		return err
	case externTag:
		if _, err := r.ReadByte(); err != nil { // attribute
			return err
		}
		_, err := readU32(r)
		return err
	}
	return fmt.Errorf("unknown import kind 0x%02x", byte(kind))
}

func skipLimits(r *bytes.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if _, err := readU32(r); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		_, err = readU32(r)
	}
	return err
}

func readName(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readU32 reads an unsigned LEB128 value of at most five groups.
func readU32(r io.ByteReader) (uint32, error) {
	var result uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, errLEBOverflow
}

// checkImportKinds rejects every import that is not a function. Host
// modules only supply functions, so any other kind could never link.
func checkImportKinds(bin []byte) error {
	imports, err := scanImports(bin)
	if err != nil {
		return errors.Compile(errors.KindMalformed, "read import section", err)
	}
	for _, imp := range imports {
		if imp.Kind == externFunc {
			continue
		}
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Import(imp.Module, imp.Name).
			Detailf("%s imports are not supported, only functions can be imported", imp.Kind).
			Build()
	}
	return nil
}
