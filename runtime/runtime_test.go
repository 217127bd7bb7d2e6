package runtime

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/engine"
	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/linker"
)

const helloWAT = `(module
	(import "env" "say_hello" (func $hello))
	(func (export "run") (call $hello)))`

func newRuntime(t *testing.T, cfg *Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestQuickStart(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	var calls atomic.Int32
	if err := rt.RegisterFunc("env", "say_hello", linker.Void(func(context.Context) { calls.Add(1) })); err != nil {
		t.Fatal(err)
	}

	mod, err := rt.LoadWAT(ctx, helloWAT)
	if err != nil {
		t.Fatalf("LoadWAT: %v", err)
	}
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "run")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res != nil {
		t.Errorf("run returned %v", res)
	}
	if calls.Load() != 1 {
		t.Errorf("say_hello called %d times", calls.Load())
	}
}

func TestRegisterAfterInstantiate(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	mod, err := rt.LoadWAT(ctx, "(module)")
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_ = inst.Close(ctx)

	err = rt.RegisterFunc("env", "late", func(context.Context) {})
	if !stderrors.Is(err, errors.ErrFrozenRegistry) {
		t.Errorf("got %v, want ErrFrozenRegistry", err)
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	if _, err := rt.LoadWAT(ctx, "(module (func (bogus)))"); !stderrors.Is(err, errors.ErrMalformed) {
		t.Errorf("LoadWAT: got %v", err)
	}
	if _, err := rt.LoadWASM(ctx, []byte("nope")); !stderrors.Is(err, errors.ErrMalformed) {
		t.Errorf("LoadWASM: got %v", err)
	}

	failing := wasmenclave.LoaderFunc(func(context.Context) (wasmenclave.Source, error) {
		return wasmenclave.Source{}, stderrors.New("disk on fire")
	})
	_, err := rt.LoadFrom(ctx, failing)
	if phase, _ := errors.PhaseOf(err); phase != errors.PhaseLoad {
		t.Errorf("LoadFrom: got %v", err)
	}
}

func TestLoadFromAndBinary(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, &Config{Backend: engine.BackendInterpreter})

	text, err := rt.LoadFrom(ctx, wasmenclave.LoaderFunc(func(context.Context) (wasmenclave.Source, error) {
		return wasmenclave.TextSource("seven", `(module (func (export "seven") (result i32) (i32.const 7)))`), nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer text.Close(ctx)

	bin, err := rt.LoadWASM(ctx, text.Compiled().Binary())
	if err != nil {
		t.Fatal(err)
	}
	defer bin.Close(ctx)

	inst, err := bin.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "seven")
	if err != nil {
		t.Fatal(err)
	}
	if res != int32(7) {
		t.Errorf("seven() = %v (%T)", res, res)
	}
	if got := bin.Exports(); len(got) != 1 || got[0].Name != "seven" {
		t.Errorf("Exports = %+v", got)
	}
	if bin.Manifest().Backend != "interpreter" {
		t.Errorf("Backend = %s", bin.Manifest().Backend)
	}
}

func TestInitFunctionsConfig(t *testing.T) {
	ctx := context.Background()
	src := `(module
		(import "env" "say_hello" (func $hello))
		(func (export "_initialize") (call $hello))
		(func (export "setup") (call $hello) (call $hello)))`

	tests := []struct {
		name string
		init []string
		want int32
	}{
		{"default", nil, 1},
		{"custom", []string{"setup"}, 2},
		{"none", []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRuntime(t, &Config{InitFunctions: tt.init})
			var calls atomic.Int32
			_ = rt.RegisterFunc("env", "say_hello", func(context.Context) { calls.Add(1) })
			mod, err := rt.LoadWAT(ctx, src)
			if err != nil {
				t.Fatal(err)
			}
			defer mod.Close(ctx)
			inst, err := mod.Instantiate(ctx)
			if err != nil {
				t.Fatal(err)
			}
			defer inst.Close(ctx)
			if calls.Load() != tt.want {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.want)
			}
		})
	}
}

func TestCallConversions(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	mod, err := rt.LoadWAT(ctx, `(module
		(func (export "i32") (param i32) (result i32) (local.get 0))
		(func (export "i64") (param i64) (result i64) (local.get 0))
		(func (export "f32") (param f32) (result f32) (local.get 0))
		(func (export "f64") (param f64) (result f64) (local.get 0))
		(func (export "pair") (result i32 i64) (i32.const 1) (i64.const 2)))`)
	if err != nil {
		t.Fatal(err)
	}
	defer mod.Close(ctx)
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	tests := []struct {
		name   string
		export string
		arg    any
		want   any
	}{
		{"int32", "i32", int32(-3), int32(-3)},
		{"int", "i32", 5, int32(5)},
		{"uint32", "i32", uint32(0xFFFFFFFF), int32(-1)},
		{"bool", "i32", true, int32(1)},
		{"value", "i32", wasmenclave.I32(9), int32(9)},
		{"int64", "i64", int64(1 << 40), int64(1 << 40)},
		{"uint64", "i64", uint64(3), int64(3)},
		{"float32", "f32", float32(1.5), float32(1.5)},
		{"float64", "f64", 2.25, 2.25},
		{"widened_float32", "f64", float32(0.5), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inst.Call(ctx, tt.export, tt.arg)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}

	pair, err := inst.Call(ctx, "pair")
	if err != nil {
		t.Fatal(err)
	}
	vals, ok := pair.([]any)
	if !ok || len(vals) != 2 || vals[0] != int32(1) || vals[1] != int64(2) {
		t.Errorf("pair = %#v", pair)
	}

	bad := []struct {
		name   string
		export string
		args   []any
		want   error
	}{
		{"overflow", "i32", []any{1 << 40}, errors.ErrArgumentMismatch},
		{"string", "i32", []any{"x"}, errors.ErrArgumentMismatch},
		{"value_type", "i32", []any{wasmenclave.I64(1)}, errors.ErrArgumentMismatch},
		{"arity", "i32", nil, errors.ErrArgumentMismatch},
		{"missing", "nope", nil, errors.ErrExportNotFound},
	}
	for _, tt := range bad {
		t.Run("bad_"+tt.name, func(t *testing.T) {
			if _, err := inst.Call(ctx, tt.export, tt.args...); !stderrors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	vals2, err := inst.CallValues(ctx, "i64", wasmenclave.I64(-1))
	if err != nil || vals2[0].I64() != -1 {
		t.Errorf("CallValues = %v, %v", vals2, err)
	}
}
