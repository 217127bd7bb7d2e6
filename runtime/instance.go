package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/linker"
)

type Instance struct {
	module *Module
	inner  *linker.Instance
}

// Call invokes an exported function, converting Go arguments to the export's
// parameter types. It returns nil for no results, the single result as a Go
// value (int32, int64, float32, float64), or []any for several.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	def, ok := i.module.compiled.Export(name)
	if !ok {
		return nil, errors.ExportNotFound(name)
	}
	if len(args) != len(def.Params) {
		return nil, errors.ArgumentMismatch(name,
			fmt.Sprintf("expected %d argument(s) %s, got %d", len(def.Params), wasmenclave.TypeNames(def.Params), len(args)))
	}

	values := make([]wasmenclave.Value, len(args))
	for n, arg := range args {
		v, err := toValue(arg, def.Params[n])
		if err != nil {
			return nil, errors.ArgumentMismatch(name, fmt.Sprintf("argument %d: %v", n, err))
		}
		values[n] = v
	}

	results, err := i.inner.Call(ctx, name, values...)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return fromValue(results[0]), nil
	}
	out := make([]any, len(results))
	for n, r := range results {
		out[n] = fromValue(r)
	}
	return out, nil
}

// CallValues invokes an export with explicitly typed values.
func (i *Instance) CallValues(ctx context.Context, name string, args ...wasmenclave.Value) ([]wasmenclave.Value, error) {
	return i.inner.Call(ctx, name, args...)
}

// Exports lists exported function names.
func (i *Instance) Exports() []string {
	return i.inner.Exports()
}

func (i *Instance) Close(ctx context.Context) error {
	return i.inner.Close(ctx)
}

func toValue(arg any, t api.ValueType) (wasmenclave.Value, error) {
	if v, ok := arg.(wasmenclave.Value); ok {
		if v.Type != t {
			return wasmenclave.Value{}, fmt.Errorf("%s value for %s parameter", api.ValueTypeName(v.Type), api.ValueTypeName(t))
		}
		return v, nil
	}

	switch t {
	case api.ValueTypeI32:
		switch a := arg.(type) {
		case int32:
			return wasmenclave.I32(a), nil
		case uint32:
			return wasmenclave.Value{Type: t, Bits: api.EncodeU32(a)}, nil
		case bool:
			if a {
				return wasmenclave.I32(1), nil
			}
			return wasmenclave.I32(0), nil
		case int:
			if int(int32(a)) != a {
				return wasmenclave.Value{}, fmt.Errorf("%d overflows i32", a)
			}
			return wasmenclave.I32(int32(a)), nil
		}
	case api.ValueTypeI64:
		switch a := arg.(type) {
		case int64:
			return wasmenclave.I64(a), nil
		case uint64:
			return wasmenclave.Value{Type: t, Bits: a}, nil
		case int:
			return wasmenclave.I64(int64(a)), nil
		}
	case api.ValueTypeF32:
		if a, ok := arg.(float32); ok {
			return wasmenclave.F32(a), nil
		}
	case api.ValueTypeF64:
		switch a := arg.(type) {
		case float64:
			return wasmenclave.F64(a), nil
		case float32:
			return wasmenclave.F64(float64(a)), nil
		}
	}
	return wasmenclave.Value{}, fmt.Errorf("cannot use %T as %s", arg, api.ValueTypeName(t))
}

func fromValue(v wasmenclave.Value) any {
	switch v.Type {
	case api.ValueTypeI32:
		return v.I32()
	case api.ValueTypeI64:
		return v.I64()
	case api.ValueTypeF32:
		return v.F32()
	case api.ValueTypeF64:
		return v.F64()
	}
	return v.Bits
}
