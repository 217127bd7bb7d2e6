// Package wasmenclave runs one sandboxed WebAssembly module inside a trusted
// enclave and exposes a single entry point that accepts untrusted input.
//
// # Architecture Overview
//
//	wasmenclave/         Root package: Source, Loader and Value
//	├── wat/             WAT text subset to wasm binary
//	├── engine/          Module compilation on a selectable wazero backend
//	├── linker/          Host import registry, instantiation and invocation
//	├── runtime/         High-level API tying engine and linker together
//	├── enclave/         Trust boundary gate and request processing
//	├── config/          YAML configuration
//	├── errors/          Structured error types
//	├── cmd/enclave/     CLI: call, inspect, console
//	└── examples/basic/  Host module walkthrough
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	rt.RegisterFunc("env", "say_hello", linker.Void(func(ctx context.Context) {
//	    fmt.Println("Hello, world!")
//	}))
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
//	_, err = inst.Call(ctx, "run")
//
// # Trust Boundary
//
// The enclave package owns the only function reachable from the untrusted
// side. It validates a (pointer, length) pair before building any view of
// the memory, copies the bytes into an enclave-owned buffer and reports a
// Status. Errors never cross the boundary.
//
// # Thread Safety
//
// Engine, compiled modules and import tables are safe for concurrent use.
// An Instance serialises its calls; each boundary call builds its own.
package wasmenclave
