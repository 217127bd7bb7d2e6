package linker

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/engine"
	"github.com/wippyai/wasm-enclave/errors"
)

// Options configures linker behavior.
type Options struct {
	// InitFunctions are exports run after the start function, in order.
	// Missing ones are skipped.
	InitFunctions []string
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{
		InitFunctions: []string{"_initialize"},
	}
}

// Linker resolves a compiled module's imports against an ImportTable and
// instantiates it. It holds no per-instance state and is safe for
// concurrent use.
type Linker struct {
	options Options
}

// New creates a new Linker with the given options.
func New(opts Options) *Linker {
	return &Linker{options: opts}
}

// NewWithDefaults creates a new Linker with default options.
func NewWithDefaults() *Linker {
	return New(DefaultOptions())
}

// Options returns the configuration.
func (l *Linker) Options() Options {
	return l.options
}

// Check reports whether imports satisfies every function mod imports without
// creating any runtime state. Missing bindings are reported together as a
// *errors.MissingImportsError and take precedence over signature mismatches.
func (l *Linker) Check(mod *engine.Module, imports *ImportTable) error {
	var missing []string
	var mismatch error
	for _, imp := range mod.Imports() {
		def, ok := imports.Lookup(imp.Namespace, imp.Name)
		if !ok {
			missing = append(missing, imp.Namespace+"#"+imp.Name)
			continue
		}
		if mismatch == nil && (!wasmenclave.SameTypes(imp.Params, def.ParamTypes) || !wasmenclave.SameTypes(imp.Results, def.ResultTypes)) {
			want := wasmenclave.TypeNames(imp.Params) + " -> " + wasmenclave.TypeNames(imp.Results)
			mismatch = errors.ImportSignature(imp.Namespace, imp.Name, want, def.Signature())
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return mismatch
}

// Instantiate creates a fresh Instance of mod. The instance gets its own
// runtime, linear memory and host module instances. On failure every partially
// created piece is released and no Instance is returned.
func (l *Linker) Instantiate(ctx context.Context, mod *engine.Module, imports *ImportTable) (*Instance, error) {
	if err := l.Check(mod, imports); err != nil {
		Logger().Debug("import check failed", zap.String("module", mod.Name()), zap.Error(err))
		return nil, err
	}

	rt, compiled, err := mod.NewRuntime(ctx)
	if err != nil {
		return nil, err
	}

	inst, err := l.instantiate(ctx, rt, compiled, mod, imports)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	detach, err := mod.Attach(inst)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	inst.detach = detach

	Logger().Debug("module instantiated",
		zap.String("module", mod.Name()),
		zap.Stringer("fingerprint", mod.Fingerprint()),
		zap.Int("imports", len(mod.Imports())))
	return inst, nil
}

func (l *Linker) instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, mod *engine.Module, imports *ImportTable) (*Instance, error) {
	// Only namespaces the module imports from are instantiated.
	used := make(map[string]bool)
	for _, imp := range mod.Imports() {
		used[imp.Namespace] = true
	}
	for _, ns := range imports.Namespaces() {
		if !used[ns] {
			continue
		}
		if err := buildHostModule(ctx, rt, ns, imports.Funcs(ns)); err != nil {
			return nil, errors.New(errors.PhaseLink, errors.KindInstantiation).
				Name(ns).
				Detailf("instantiate host module %q", ns).
				Cause(err).
				Build()
		}
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions(l.options.InitFunctions...)
	guest, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	return &Instance{
		module: mod,
		rt:     rt,
		guest:  guest,
	}, nil
}

// buildHostModule instantiates one namespace's functions into rt.
func buildHostModule(ctx context.Context, rt wazero.Runtime, namespace string, funcs []*FuncDef) error {
	builder := rt.NewHostModuleBuilder(namespace)
	for _, f := range funcs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Handler, f.ParamTypes, f.ResultTypes).
			WithName(f.Name).
			Export(f.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("linker: host module %s: %w", namespace, err)
	}
	return nil
}
