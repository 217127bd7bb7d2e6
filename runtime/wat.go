package runtime

import (
	"context"

	wasmenclave "github.com/wippyai/wasm-enclave"
)

// LoadWAT compiles WAT text. Translation errors are compile-phase
// *errors.Error values.
func (r *Runtime) LoadWAT(ctx context.Context, watText string) (*Module, error) {
	return r.Load(ctx, wasmenclave.TextSource("", watText))
}
