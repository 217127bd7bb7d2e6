package wat

import (
	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/wat/internal/encoder"
	"github.com/wippyai/wasm-enclave/wat/internal/parser"
	"github.com/wippyai/wasm-enclave/wat/internal/token"
)

// Compile translates WAT source into a binary module. Failures are
// *errors.Error in the compile phase: KindMalformed for text that is not
// valid WAT, KindUnsupported for valid constructs this translator lacks.
func Compile(source string) ([]byte, error) {
	tokens, err := token.Tokenize(source)
	if err != nil {
		return nil, errors.Compile(errors.KindMalformed, err.Error(), nil)
	}
	mod, err := parser.New(tokens).Parse()
	if err != nil {
		return nil, err
	}
	return encoder.Encode(mod), nil
}
