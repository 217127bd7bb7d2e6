package enclave

import (
	"bytes"
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/errors"
)

//go:embed hello.wat
var helloWAT string

// DefaultLoader supplies the built-in hello module.
func DefaultLoader() wasmenclave.Loader {
	return StaticLoader{Source: wasmenclave.TextSource("hello", helloWAT)}
}

// StaticLoader returns a fixed source.
type StaticLoader struct {
	Source wasmenclave.Source
}

func (l StaticLoader) LoadSource(context.Context) (wasmenclave.Source, error) {
	return l.Source, nil
}

// FileLoader reads a module from disk. ".wat" files are text, ".wasm" files
// binary; anything else is sniffed for the wasm magic number.
type FileLoader struct {
	Path string
}

func (l FileLoader) LoadSource(ctx context.Context) (wasmenclave.Source, error) {
	if err := ctx.Err(); err != nil {
		return wasmenclave.Source{}, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return wasmenclave.Source{}, errors.Load("read module file", err)
	}

	name := strings.TrimSuffix(filepath.Base(l.Path), filepath.Ext(l.Path))
	format := wasmenclave.FormatText
	switch strings.ToLower(filepath.Ext(l.Path)) {
	case ".wasm":
		format = wasmenclave.FormatBinary
	case ".wat":
	default:
		if bytes.HasPrefix(data, []byte("\x00asm")) {
			format = wasmenclave.FormatBinary
		}
	}
	return wasmenclave.NewSource(name, format, data), nil
}
