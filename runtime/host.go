package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/linker"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the import module name (e.g., "env").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact import names when the
// automatic PascalCase-to-snake_case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func hostMethods(h Host) (map[string]any, error) {
	if h == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "nil host")
	}
	if h.Namespace() == "" {
		return nil, errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if er, ok := h.(ExplicitRegistrar); ok {
		return er.Register(), nil
	}

	funcs := make(map[string]any)
	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		funcs[toSnakeCase(method.Name)] = rv.Method(i).Interface()
	}
	return funcs, nil
}

// hostFunc adapts fn to a linker.HostFunc. Besides linker.HostFunc itself it
// accepts Go functions of the form
//
//	func([ctx context.Context,] [mod api.Module,] args...) (results..., [error])
//
// where every arg and result is int32, uint32, bool, int64, uint64, float32
// or float64. A non-nil error result traps the guest.
func hostFunc(fn any) (linker.HostFunc, error) {
	switch f := fn.(type) {
	case linker.HostFunc:
		return f, nil
	case func(context.Context):
		return linker.Void(f), nil
	case nil:
		return linker.HostFunc{}, fmt.Errorf("handler is nil")
	}

	rv := reflect.ValueOf(fn)
	ft := rv.Type()
	if ft.Kind() != reflect.Func {
		return linker.HostFunc{}, fmt.Errorf("handler must be a function, got %s", ft)
	}
	if ft.IsVariadic() {
		return linker.HostFunc{}, fmt.Errorf("variadic handler %s", ft)
	}

	in := 0
	wantCtx := in < ft.NumIn() && ft.In(in) == contextType
	if wantCtx {
		in++
	}
	wantMod := in < ft.NumIn() && ft.In(in) == moduleType
	if wantMod {
		in++
	}
	argTypes := make([]reflect.Type, 0, ft.NumIn()-in)
	var params []api.ValueType
	for ; in < ft.NumIn(); in++ {
		vt, ok := valueTypeOf(ft.In(in))
		if !ok {
			return linker.HostFunc{}, fmt.Errorf("parameter %d: unsupported type %s", in, ft.In(in))
		}
		argTypes = append(argTypes, ft.In(in))
		params = append(params, vt)
	}

	numOut := ft.NumOut()
	hasErr := numOut > 0 && ft.Out(numOut-1) == errorType
	if hasErr {
		numOut--
	}
	var results []api.ValueType
	for i := 0; i < numOut; i++ {
		vt, ok := valueTypeOf(ft.Out(i))
		if !ok {
			return linker.HostFunc{}, fmt.Errorf("result %d: unsupported type %s", i, ft.Out(i))
		}
		results = append(results, vt)
	}

	handler := func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]reflect.Value, 0, ft.NumIn())
		if wantCtx {
			args = append(args, reflect.ValueOf(&ctx).Elem())
		}
		if wantMod {
			args = append(args, reflect.ValueOf(&mod).Elem())
		}
		for i, t := range argTypes {
			args = append(args, decodeValue(stack[i], t))
		}
		out := rv.Call(args)
		if hasErr {
			if err, _ := out[numOut].Interface().(error); err != nil {
				panic(err)
			}
		}
		for i := 0; i < numOut; i++ {
			stack[i] = encodeValue(out[i])
		}
	}
	return linker.Func(handler, params, results), nil
}

func valueTypeOf(t reflect.Type) (api.ValueType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32, reflect.Bool:
		return api.ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64, true
	case reflect.Float32:
		return api.ValueTypeF32, true
	case reflect.Float64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func decodeValue(bits uint64, t reflect.Type) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(api.DecodeI32(bits)))
	case reflect.Uint32:
		v.SetUint(uint64(api.DecodeU32(bits)))
	case reflect.Bool:
		v.SetBool(uint32(bits) != 0)
	case reflect.Int64:
		v.SetInt(int64(bits))
	case reflect.Uint64:
		v.SetUint(bits)
	case reflect.Float32:
		v.SetFloat(float64(api.DecodeF32(bits)))
	case reflect.Float64:
		v.SetFloat(api.DecodeF64(bits))
	}
	return v
}

func encodeValue(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return api.EncodeI32(int32(v.Int()))
	case reflect.Uint32:
		return api.EncodeU32(uint32(v.Uint()))
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int64:
		return api.EncodeI64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return api.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return api.EncodeF64(v.Float())
	}
	return 0
}

// toSnakeCase converts a Go method name to an import name. A word starts at
// an upper-case rune that follows a lower-case rune or digit, or that ends a
// run of capitals before a lower-case rune: SayHello -> say_hello,
// HTTPServer -> http_server. Adjacent acronyms stay joined: GetHTTPURL ->
// get_httpurl.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
