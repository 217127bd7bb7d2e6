// Package runtime provides the high-level API over engine and linker.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	rt.RegisterFunc("env", "add", func(a, b int32) int32 { return a + b })
//
//	mod, err := rt.LoadWAT(ctx, watText)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	result, err := inst.Call(ctx, "sum", int32(2), int32(40))
//	fmt.Println(result) // 42
//
// # Loading Modules
//
//	Load(source)    - Load a wasmenclave.Source
//	LoadWASM(bytes) - Load a core wasm binary
//	LoadWAT(text)   - Load WAT text (translated to wasm)
//	LoadFrom(l)     - Load from a wasmenclave.Loader
//
// # Host Functions
//
// RegisterFunc accepts a linker.HostFunc, a func(context.Context), or a Go
// function whose parameters and results use the core value types. An
// optional leading context.Context and api.Module are passed through, and a
// trailing error result traps the guest when non-nil.
//
//	Go Type          Wasm Type
//	───────────────────────────
//	int32/uint32     i32
//	bool             i32
//	int64/uint64     i64
//	float32          f32
//	float64          f64
//
// Implement Host to register every exported method of a struct under one
// namespace, with names converted to snake_case.
//
// Registration must finish before the first Instantiate, which freezes the
// host registry.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instances serialize calls;
// each instance has its own linear memory.
package runtime
