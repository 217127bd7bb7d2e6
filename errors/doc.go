// Package errors provides structured error types for wasm-enclave.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Each error class has an exported sentinel so callers can branch with errors.Is:
//
//	if errors.Is(err, wasmerrors.ErrUnsatisfiedImport) { ... }
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindSignatureMismatch).
//		Import("env", "say_hello").
//		Detailf("module expects %s", "()").
//		Build()
//
// MissingImportsError lists every import an ImportTable failed to satisfy and
// matches ErrUnsatisfiedImport.
//
// None of these values are meant to cross the enclave boundary; the enclave
// package translates them into a Status.
package errors
