// Package enclave is the trust boundary between an untrusted caller and the
// code hosted inside the enclave.
//
// The untrusted side hands over a raw (pointer, length) pair. Gate checks the
// pair without reading through it, copies the region into an enclave-owned
// Buffer, passes that to a Processor and reduces every outcome, panics
// included, to one of three Status values:
//
//	StatusSuccess          the request was handled
//	StatusInvalidInput     the region or its encoding was rejected
//	StatusInternalFailure  anything failed after the request was accepted
//
// Error detail never crosses the boundary. It is logged on the enclave side.
//
// Greeter is the default Processor: it echoes the request text together with
// a greeting assembled from enclave constants, then runs a Workload.
// HelloWorkload compiles a hosted wasm module once and, per request, links
// it against a fresh import table and invokes its run export.
package enclave
