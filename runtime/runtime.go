package runtime

import (
	"context"

	"go.uber.org/zap"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/engine"
	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/linker"
)

// Config configures a Runtime. The zero value is usable.
type Config struct {
	Engine  engine.Config
	Backend engine.Backend

	// InitFunctions are exports run once per instance after the start
	// function. nil means "_initialize".
	InitFunctions []string
}

type Runtime struct {
	engine  *engine.Engine
	hosts   *linker.Registry
	linker  *linker.Linker
	backend engine.Backend
}

// New creates a runtime. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	eng, err := engine.New(ctx, &cfg.Engine)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	opts := linker.DefaultOptions()
	if cfg.InitFunctions != nil {
		opts.InitFunctions = cfg.InitFunctions
	}

	return &Runtime{
		engine:  eng,
		hosts:   linker.NewRegistry(),
		linker:  linker.New(opts),
		backend: cfg.Backend,
	}, nil
}

// Close releases all runtime resources.
// All modules should be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// Engine returns the underlying module compiler.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// RegisterFunc registers a host function. fn is a linker.HostFunc, a
// func(context.Context) or any Go function using the core value types (see
// package docs). Must be called before the first Instantiate, which freezes
// the host registry.
func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	hf, err := hostFunc(fn)
	if err != nil {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Import(namespace, name).
			Detail(err.Error()).
			Build()
	}
	return r.hosts.Register(namespace, name, hf)
}

// RegisterHost registers all exported methods of h as host functions.
// Method names are converted from PascalCase to snake_case (SayHello -> say_hello).
func (r *Runtime) RegisterHost(h Host) error {
	funcs, err := hostMethods(h)
	if err != nil {
		return err
	}
	ns := h.Namespace()
	for _, name := range sortedKeys(funcs) {
		if err := r.RegisterFunc(ns, name, funcs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Imports freezes the host registry and returns its table.
func (r *Runtime) Imports() *linker.ImportTable {
	return r.hosts.Build()
}

// Load compiles src for the runtime's backend.
func (r *Runtime) Load(ctx context.Context, src wasmenclave.Source) (*Module, error) {
	compiled, err := r.engine.Compile(ctx, src, r.backend)
	if err != nil {
		return nil, err
	}
	return &Module{runtime: r, compiled: compiled}, nil
}

// LoadWASM compiles a core wasm binary.
func (r *Runtime) LoadWASM(ctx context.Context, wasm []byte) (*Module, error) {
	return r.Load(ctx, wasmenclave.BinarySource("", wasm))
}

// LoadFrom compiles whatever source loader supplies.
func (r *Runtime) LoadFrom(ctx context.Context, loader wasmenclave.Loader) (*Module, error) {
	src, err := loader.LoadSource(ctx)
	if err != nil {
		return nil, errors.Load("load source", err)
	}
	mod, err := r.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	engine.Logger().Debug("module loaded",
		zap.String("name", src.Name()),
		zap.Stringer("format", src.Format()))
	return mod, nil
}
