package linker

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/engine"
	"github.com/wippyai/wasm-enclave/errors"
)

// Instance is a live, linked module. Calls are serialized; an instance that
// trapped refuses further calls.
type Instance struct {
	module   *engine.Module
	rt       wazero.Runtime
	guest    api.Module
	detach   func()
	mu       sync.Mutex
	poisoned bool
	closed   bool
}

// Module returns the compiled module this instance was created from.
func (i *Instance) Module() *engine.Module {
	return i.module
}

// Exports lists exported function names in sorted order.
func (i *Instance) Exports() []string {
	exports := i.module.Exports()
	names := make([]string, len(exports))
	for n, f := range exports {
		names[n] = f.Name
	}
	return names
}

// Usable reports whether the instance is open and has not trapped.
func (i *Instance) Usable() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return !i.closed && !i.poisoned
}

// Call invokes an exported function synchronously. Host functions the guest
// calls run on the calling goroutine before Call returns.
func (i *Instance) Call(ctx context.Context, name string, args ...wasmenclave.Value) ([]wasmenclave.Value, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, errors.Closed("instance")
	}
	if i.poisoned {
		return nil, errors.InstanceUnusable(name)
	}

	def, ok := i.module.Export(name)
	if !ok {
		return nil, errors.ExportNotFound(name)
	}
	raw, err := encodeArgs(name, def, args)
	if err != nil {
		return nil, err
	}

	fn := i.guest.ExportedFunction(name)
	if fn == nil {
		return nil, errors.ExportNotFound(name)
	}

	results, err := fn.Call(ctx, raw...)
	if err != nil {
		i.poisoned = true
		Logger().Debug("guest trapped", zap.String("module", i.module.Name()), zap.String("export", name), zap.Error(err))
		return nil, errors.Trap(name, err)
	}

	out := make([]wasmenclave.Value, len(results))
	for n, bits := range results {
		out[n] = wasmenclave.Value{Type: def.Results[n], Bits: bits}
	}
	return out, nil
}

func encodeArgs(name string, def engine.Func, args []wasmenclave.Value) ([]uint64, error) {
	if len(args) != len(def.Params) {
		return nil, errors.ArgumentMismatch(name,
			fmt.Sprintf("expected %d argument(s) %s, got %d", len(def.Params), wasmenclave.TypeNames(def.Params), len(args)))
	}
	raw := make([]uint64, len(args))
	for n, arg := range args {
		if arg.Type != def.Params[n] {
			return nil, errors.ArgumentMismatch(name,
				fmt.Sprintf("argument %d is %s, expected %s", n, api.ValueTypeName(arg.Type), api.ValueTypeName(def.Params[n])))
		}
		raw[n] = arg.Bits
	}
	return raw, nil
}

// Close releases the instance's runtime. Subsequent calls are no-ops.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	detach := i.detach
	i.mu.Unlock()

	if detach != nil {
		detach()
	}
	return i.rt.Close(ctx)
}
