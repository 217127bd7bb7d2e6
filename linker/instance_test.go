package linker

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tetratelabs/wazero/api"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/errors"
)

const mathWAT = `(module
	(memory 1)
	(func (export "add") (param i32 i32) (result i32)
		(i32.add (local.get 0) (local.get 1)))
	(func (export "add64") (param i64 i64) (result i64)
		(i64.add (local.get 0) (local.get 1)))
	(func (export "div") (param i32 i32) (result i32)
		(i32.div_s (local.get 0) (local.get 1)))
	(func (export "bump") (result i32)
		(i32.store (i32.const 0) (i32.add (i32.load (i32.const 0)) (i32.const 1)))
		(i32.load (i32.const 0)))
	(func (export "crash") unreachable))`

func TestInstanceCall(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)
	inst, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	tests := []struct {
		name   string
		export string
		args   []wasmenclave.Value
		want   wasmenclave.Value
	}{
		{"add", "add", []wasmenclave.Value{wasmenclave.I32(2), wasmenclave.I32(40)}, wasmenclave.I32(42)},
		{"add_negative", "add", []wasmenclave.Value{wasmenclave.I32(-5), wasmenclave.I32(3)}, wasmenclave.I32(-2)},
		{"add64", "add64", []wasmenclave.Value{wasmenclave.I64(1 << 40), wasmenclave.I64(1)}, wasmenclave.I64(1<<40 + 1)},
		{"div", "div", []wasmenclave.Value{wasmenclave.I32(-9), wasmenclave.I32(3)}, wasmenclave.I32(-3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := inst.Call(ctx, tt.export, tt.args...)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if len(res) != 1 || res[0] != tt.want {
				t.Errorf("got %+v, want %+v", res, tt.want)
			}
		})
	}
}

func TestInstanceCallErrors(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)
	inst, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	tests := []struct {
		name   string
		export string
		args   []wasmenclave.Value
		want   error
	}{
		{"missing_export", "nope", nil, errors.ErrExportNotFound},
		{"too_few", "add", []wasmenclave.Value{wasmenclave.I32(1)}, errors.ErrArgumentMismatch},
		{"too_many", "add", []wasmenclave.Value{wasmenclave.I32(1), wasmenclave.I32(1), wasmenclave.I32(1)}, errors.ErrArgumentMismatch},
		{"wrong_type", "add", []wasmenclave.Value{wasmenclave.I64(1), wasmenclave.I32(1)}, errors.ErrArgumentMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inst.Call(ctx, tt.export, tt.args...)
			if !stderrors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if !inst.Usable() {
		t.Error("argument errors must not poison the instance")
	}
}

func TestInstanceTrapPoisons(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)
	inst, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	_, err = inst.Call(ctx, "div", wasmenclave.I32(1), wasmenclave.I32(0))
	if !stderrors.Is(err, errors.ErrTrap) {
		t.Fatalf("got %v, want ErrTrap", err)
	}
	if inst.Usable() {
		t.Error("instance still usable after trap")
	}
	_, err = inst.Call(ctx, "add", wasmenclave.I32(1), wasmenclave.I32(2))
	if !stderrors.Is(err, errors.ErrInstanceUnusable) {
		t.Errorf("got %v, want ErrInstanceUnusable", err)
	}
}

func TestInstanceHostPanicTraps(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, helloWAT)

	r := NewRegistry()
	_ = r.Register("env", "say_hello", Void(func(context.Context) { panic("host failure") }))
	inst, err := NewWithDefaults().Instantiate(ctx, mod, r.Build())
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Call(ctx, "run"); !stderrors.Is(err, errors.ErrTrap) {
		t.Errorf("got %v, want ErrTrap", err)
	}
}

func TestInstanceIsolation(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)

	a, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	b, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(ctx)

	for range 3 {
		if _, err := a.Call(ctx, "bump"); err != nil {
			t.Fatal(err)
		}
	}
	res, err := b.Call(ctx, "bump")
	if err != nil {
		t.Fatal(err)
	}
	if res[0].I32() != 1 {
		t.Errorf("second instance counter = %d, want 1", res[0].I32())
	}

	if _, err := a.Call(ctx, "crash"); !stderrors.Is(err, errors.ErrTrap) {
		t.Fatal(err)
	}
	if !b.Usable() {
		t.Error("trap in one instance poisoned another")
	}
}

func TestInstanceClose(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)
	inst, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	if mod.Live() != 1 {
		t.Errorf("Live = %d", mod.Live())
	}
	if err := inst.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if mod.Live() != 0 {
		t.Errorf("Live after Close = %d", mod.Live())
	}
	_, err = inst.Call(ctx, "add", wasmenclave.I32(1), wasmenclave.I32(2))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindClosed {
		t.Errorf("got %v, want closed", err)
	}
}

func TestModuleCloseClosesInstances(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)
	inst, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := mod.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if inst.Usable() {
		t.Error("instance outlived its module")
	}
}

func TestInstanceConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, mathWAT)
	inst, err := NewWithDefaults().Instantiate(ctx, mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := inst.Call(ctx, "bump"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	if failures.Load() != 0 {
		t.Fatalf("%d calls failed", failures.Load())
	}
	res, err := inst.Call(ctx, "bump")
	if err != nil {
		t.Fatal(err)
	}
	if res[0].I32() != 17 {
		t.Errorf("counter = %d, want 17", res[0].I32())
	}
}

func TestHostFuncReceivesArgs(t *testing.T) {
	ctx := context.Background()
	mod := compile(t, `(module
		(import "env" "double" (func $double (param i32) (result i32)))
		(func (export "run") (param i32) (result i32) (call $double (local.get 0))))`)

	r := NewRegistry()
	err := r.Register("env", "double", Func(func(_ context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(api.DecodeI32(stack[0]) * 2)
	}, []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}))
	if err != nil {
		t.Fatal(err)
	}
	inst, err := NewWithDefaults().Instantiate(ctx, mod, r.Build())
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "run", wasmenclave.I32(21))
	if err != nil {
		t.Fatal(err)
	}
	if res[0].I32() != 42 {
		t.Errorf("run(21) = %d", res[0].I32())
	}
}
