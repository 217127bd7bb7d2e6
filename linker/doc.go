// Package linker binds host functions to compiled modules and runs them.
//
// # Main Types
//
//   - Registry: collects host functions, frozen by Build
//   - ImportTable: immutable namespace#name -> FuncDef lookup
//   - Linker: checks imports and instantiates modules
//   - Instance: a linked module with callable exports
//
// # Import Resolution
//
// Every function import is looked up in the ImportTable before any runtime
// state exists. All unresolved imports are reported at once in a
// *errors.MissingImportsError; a binding whose signature differs from the
// import is reported as errors.ErrImportSignature.
//
// # Thread Safety
//
// Registry, ImportTable and Linker are safe for concurrent use. Instance
// serializes calls; a guest that calls back into its own instance from a host
// function deadlocks.
//
// # Example
//
//	reg := linker.NewRegistry()
//	_ = reg.Register("env", "say_hello", linker.Void(func(ctx context.Context) {
//		fmt.Println("hello")
//	}))
//	inst, err := linker.NewWithDefaults().Instantiate(ctx, mod, reg.Build())
//	defer inst.Close(ctx)
//	_, err = inst.Call(ctx, "run")
package linker
