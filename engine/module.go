package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-enclave/errors"
)

// Func describes an imported or exported function. Namespace is empty for
// exports.
type Func struct {
	Namespace string
	Name      string
	Params    []api.ValueType
	Results   []api.ValueType
}

// Closer is anything a Module closes when it is itself closed.
type Closer interface {
	Close(ctx context.Context) error
}

// Module is a verified, compiled module. It is immutable and may be
// instantiated any number of times, concurrently.
type Module struct {
	engine      *Engine
	compiled    wazero.CompiledModule
	exportIdx   map[string]int
	live        map[*attachment]struct{}
	name        string
	binary      []byte
	imports     []Func
	exports     []Func
	memories    []Memory
	fingerprint Fingerprint
	mu          sync.Mutex
	backend     Backend
	closed      bool
}

type attachment struct {
	c Closer
}

func newModule(e *Engine, name string, backend Backend, bin []byte, compiled wazero.CompiledModule) *Module {
	m := &Module{
		engine:    e,
		compiled:  compiled,
		name:      name,
		backend:   backend,
		binary:    bin,
		exportIdx: make(map[string]int),
		live:      make(map[*attachment]struct{}),
	}

	for _, def := range compiled.ImportedFunctions() {
		ns, fn, _ := def.Import()
		m.imports = append(m.imports, Func{
			Namespace: ns,
			Name:      fn,
			Params:    def.ParamTypes(),
			Results:   def.ResultTypes(),
		})
	}
	sort.SliceStable(m.imports, func(i, j int) bool {
		if m.imports[i].Namespace != m.imports[j].Namespace {
			return m.imports[i].Namespace < m.imports[j].Namespace
		}
		return m.imports[i].Name < m.imports[j].Name
	})

	for name, def := range compiled.ExportedFunctions() {
		m.exports = append(m.exports, Func{
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(m.exports, func(i, j int) bool { return m.exports[i].Name < m.exports[j].Name })
	for i, f := range m.exports {
		m.exportIdx[f.Name] = i
	}

	for name, def := range compiled.ExportedMemories() {
		mem := Memory{Name: name, Min: def.Min()}
		if max, ok := def.Max(); ok {
			mem.Max = &max
		}
		m.memories = append(m.memories, mem)
	}
	sort.Slice(m.memories, func(i, j int) bool { return m.memories[i].Name < m.memories[j].Name })

	m.fingerprint = fingerprint(backend, bin)
	return m
}

func (m *Module) Name() string     { return m.name }
func (m *Module) Backend() Backend { return m.backend }

// Binary returns a copy of the verified wasm binary.
func (m *Module) Binary() []byte { return bytes.Clone(m.binary) }

// Imports lists the functions the module imports, sorted by namespace then
// name. Callers must not modify the result.
func (m *Module) Imports() []Func { return m.imports }

// Exports lists exported functions sorted by name. Callers must not modify
// the result.
func (m *Module) Exports() []Func { return m.exports }

// Export looks up an exported function.
func (m *Module) Export(name string) (Func, bool) {
	i, ok := m.exportIdx[name]
	if !ok {
		return Func{}, false
	}
	return m.exports[i], true
}

func (m *Module) Fingerprint() Fingerprint { return m.fingerprint }

// Manifest describes the module's imports and exports.
func (m *Module) Manifest() Manifest {
	man := Manifest{
		Module:      m.name,
		Backend:     m.backend.String(),
		Fingerprint: m.fingerprint.String(),
		Imports:     make([]FuncDesc, 0, len(m.imports)),
		Exports:     make([]FuncDesc, 0, len(m.exports)),
		Memories:    append([]Memory(nil), m.memories...),
	}
	for _, f := range m.imports {
		man.Imports = append(man.Imports, describe(f))
	}
	for _, f := range m.exports {
		man.Exports = append(man.Exports, describe(f))
	}
	return man
}

// NewRuntime creates a private runtime with this module compiled into it.
// The compile is served from the engine's cache. The caller owns the runtime.
func (m *Module) NewRuntime(ctx context.Context) (wazero.Runtime, wazero.CompiledModule, error) {
	if m.isClosed() {
		return nil, nil, errors.Closed("module " + m.name)
	}
	rt, err := m.engine.NewRuntime(ctx, m.backend)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := rt.CompileModule(ctx, m.binary)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, errors.Compile(errors.KindBackend, "recompile for instance runtime", err)
	}
	return rt, compiled, nil
}

// Attach registers c to be closed with the module. The returned detach func
// must be called when c is closed first.
func (m *Module) Attach(c Closer) (detach func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.Closed("module " + m.name)
	}
	a := &attachment{c: c}
	m.live[a] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.live, a)
		m.mu.Unlock()
	}, nil
}

// Live reports how many attached instances are open.
func (m *Module) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Module) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close closes every attached instance, then the compiled module.
// Subsequent calls are no-ops.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]Closer, 0, len(m.live))
	for a := range m.live {
		live = append(live, a.c)
	}
	m.live = make(map[*attachment]struct{})
	m.mu.Unlock()

	var errs []error
	for _, c := range live {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.compiled.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(live) > 0 {
		Logger().Debug("module closed with live instances",
			zap.String("name", m.name), zap.Int("instances", len(live)))
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return stderrors.Join(errs...)
}
