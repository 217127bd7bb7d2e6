package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-enclave/engine"
)

type Module struct {
	runtime  *Runtime
	compiled *engine.Module
}

// Compiled returns the underlying compiled module.
func (m *Module) Compiled() *engine.Module {
	return m.compiled
}

// Instantiate links the module against the runtime's host functions. The
// first call freezes the host registry.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	inst, err := m.runtime.linker.Instantiate(ctx, m.compiled, m.runtime.Imports())
	if err != nil {
		return nil, err
	}
	return &Instance{module: m, inner: inst}, nil
}

type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

func (m *Module) Exports() []Export {
	funcs := m.compiled.Exports()
	if len(funcs) == 0 {
		return nil
	}
	exports := make([]Export, len(funcs))
	for i, f := range funcs {
		exports[i] = Export{Name: f.Name, Params: f.Params, Results: f.Results}
	}
	return exports
}

// Manifest describes the module's imports and exports.
func (m *Module) Manifest() engine.Manifest {
	return m.compiled.Manifest()
}

// Close closes the module and every instance created from it.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
