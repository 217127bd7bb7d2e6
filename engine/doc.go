// Package engine is the module compiler.
//
// It verifies a module source, translating WAT when needed, and lowers it
// with wazero for the selected Backend. The result is an immutable *Module
// carrying the verified binary, its import/export signatures, a Manifest and
// a Fingerprint.
//
//	eng, _ := engine.New(ctx, nil)
//	mod, err := eng.Compile(ctx, wasmenclave.TextSource("hello", src), engine.BackendAuto)
//
// The engine keeps one wazero compilation cache per backend. Every instance
// gets its own runtime from Module.NewRuntime, so instances never share
// memory, tables or host module state, while compiled code is reused.
//
// Compile errors are *errors.Error in the compile phase:
//
//	KindMalformed    bad encoding, failed validation
//	KindUnsupported  constructs outside the supported subset
//	KindBackend      lowering failed or the backend is unavailable
package engine
