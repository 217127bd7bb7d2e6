// Package wat translates a subset of the WebAssembly Text format into the
// binary format.
//
// The subset covers what host-facing enclave modules need:
//
//	wasm, err := wat.Compile(`(module
//		(import "env" "say_hello" (func $hello))
//		(func (export "run") (call $hello)))`)
//
// Supported:
//   - type, import (func, memory), func, memory, export, start, data fields
//   - inline (export ...) and (import ...) on funcs and memories
//   - named and indexed params, locals, funcs, memories and types
//   - folded and flat instruction forms
//   - call, local.get/set/tee, drop, nop, unreachable, return
//   - i32/i64/f32/f64 const, i32 arithmetic and comparisons, i64 add/sub/mul
//   - i32/i64 load and store with offset= and align=, memory.size, memory.grow
//   - line (;;) and nested block (; ;) comments
//
// Structured control flow, tables, globals, elem segments, passive data and
// post-MVP proposals are rejected with errors.KindUnsupported. Type checking
// of function bodies is left to the engine, which validates the binary.
package wat
