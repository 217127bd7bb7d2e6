package enclave

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/engine"
	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/linker"
)

// Workload is the work a request triggers once its text has been handled.
type Workload interface {
	Run(ctx context.Context) error
}

// WorkloadFunc adapts a function to Workload.
type WorkloadFunc func(ctx context.Context) error

func (f WorkloadFunc) Run(ctx context.Context) error { return f(ctx) }

const (
	helloNamespace = "env"
	helloImport    = "say_hello"
	helloExport    = "run"
	helloMessage   = "Hello, world!"
)

// HelloWorkload runs one compile, link and invoke cycle per request: the
// hosted module imports env.say_hello and exports run, both taking and
// returning nothing. The module is compiled on first use and reused; every
// run gets a fresh import table and instance.
type HelloWorkload struct {
	engine  *engine.Engine
	loader  wasmenclave.Loader
	linker  *linker.Linker
	out     io.Writer
	logger  *zap.Logger
	module  *engine.Module
	hellos  atomic.Uint64
	mu      sync.Mutex
	backend engine.Backend
}

// HelloOption configures a HelloWorkload.
type HelloOption func(*HelloWorkload)

// WithBackend selects the compile backend.
func WithBackend(b engine.Backend) HelloOption {
	return func(w *HelloWorkload) { w.backend = b }
}

// WithHelloLogger sets the workload's logger.
func WithHelloLogger(l *zap.Logger) HelloOption {
	return func(w *HelloWorkload) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewHelloWorkload creates the workload. say_hello writes to out.
func NewHelloWorkload(eng *engine.Engine, loader wasmenclave.Loader, out io.Writer, opts ...HelloOption) *HelloWorkload {
	if out == nil {
		out = io.Discard
	}
	w := &HelloWorkload{
		engine: eng,
		loader: loader,
		linker: linker.NewWithDefaults(),
		out:    out,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Hellos returns how many times the guest has called say_hello.
func (w *HelloWorkload) Hellos() uint64 {
	return w.hellos.Load()
}

// Module returns the compiled module, compiling it on first use. A failed
// load or compile is retried by the next call.
func (w *HelloWorkload) Module(ctx context.Context) (*engine.Module, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.module != nil {
		return w.module, nil
	}
	src, err := w.loader.LoadSource(ctx)
	if err != nil {
		return nil, errors.Load("load hosted module", err)
	}
	mod, err := w.engine.Compile(ctx, src, w.backend)
	if err != nil {
		return nil, err
	}
	w.logger.Info("hosted module compiled",
		zap.String("name", mod.Name()),
		zap.Stringer("backend", mod.Backend()),
		zap.String("fingerprint", mod.Fingerprint().Short()))
	w.module = mod
	return mod, nil
}

// imports builds the import table for one run.
func (w *HelloWorkload) imports() (*linker.ImportTable, error) {
	reg := linker.NewRegistry()
	err := reg.Register(helloNamespace, helloImport, linker.Void(func(context.Context) {
		w.hellos.Add(1)
		fmt.Fprintln(w.out, helloMessage)
	}))
	if err != nil {
		return nil, err
	}
	return reg.Build(), nil
}

func (w *HelloWorkload) Run(ctx context.Context) error {
	mod, err := w.Module(ctx)
	if err != nil {
		return err
	}
	imports, err := w.imports()
	if err != nil {
		return err
	}

	inst, err := w.linker.Instantiate(ctx, mod, imports)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	_, err = inst.Call(ctx, helloExport)
	return err
}

// Close releases the compiled module.
func (w *HelloWorkload) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.module == nil {
		return nil
	}
	err := w.module.Close(ctx)
	w.module = nil
	return err
}
