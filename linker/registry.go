package linker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/errors"
)

// HostFunc is a host implementation with its core wasm signature.
type HostFunc struct {
	Handler api.GoModuleFunc
	Params  []api.ValueType
	Results []api.ValueType
}

// Func wraps a raw stack-based handler.
func Func(handler api.GoModuleFunc, params, results []api.ValueType) HostFunc {
	return HostFunc{Handler: handler, Params: params, Results: results}
}

// Void wraps a function taking and returning nothing, the shape of a
// notification callback such as env.say_hello.
func Void(fn func(ctx context.Context)) HostFunc {
	return HostFunc{
		Handler: func(ctx context.Context, _ api.Module, _ []uint64) {
			fn(ctx)
		},
	}
}

// FuncDef defines a host function bound to namespace#name.
type FuncDef struct {
	Namespace   string
	Name        string
	Handler     api.GoModuleFunc
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// Signature renders the definition as "(i32) -> (i32)".
func (f *FuncDef) Signature() string {
	return wasmenclave.TypeNames(f.ParamTypes) + " -> " + wasmenclave.TypeNames(f.ResultTypes)
}

// Registry collects host functions before instantiation. Registration is
// safe for concurrent use. Build freezes the registry.
type Registry struct {
	funcs map[string]map[string]*FuncDef
	table *ImportTable
	mu    sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]map[string]*FuncDef)}
}

// Register binds fn to namespace#name.
func (r *Registry) Register(namespace, name string, fn HostFunc) error {
	if err := validateHostFunc(namespace, name, fn); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table != nil {
		return errors.FrozenRegistry(namespace, name)
	}
	ns, ok := r.funcs[namespace]
	if !ok {
		ns = make(map[string]*FuncDef)
		r.funcs[namespace] = ns
	}
	if _, dup := ns[name]; dup {
		return errors.DuplicateImport(namespace, name)
	}
	ns[name] = &FuncDef{
		Namespace:   namespace,
		Name:        name,
		Handler:     fn.Handler,
		ParamTypes:  append([]api.ValueType(nil), fn.Params...),
		ResultTypes: append([]api.ValueType(nil), fn.Results...),
	}
	Logger().Debug("host function registered",
		zap.String("namespace", namespace),
		zap.String("name", name))
	return nil
}

func validateHostFunc(namespace, name string, fn HostFunc) error {
	invalid := func(detail string) error {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Import(namespace, name).
			Detail(detail).
			Build()
	}
	switch {
	case namespace == "":
		return invalid("empty namespace")
	case name == "":
		return invalid("empty function name")
	case fn.Handler == nil:
		return invalid("nil handler")
	}
	for _, types := range [][]api.ValueType{fn.Params, fn.Results} {
		for _, t := range types {
			switch t {
			case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
			default:
				return invalid(fmt.Sprintf("unsupported value type 0x%x", t))
			}
		}
	}
	return nil
}

// Build freezes the registry and returns its import table. Later calls
// return the same table.
func (r *Registry) Build() *ImportTable {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table == nil {
		r.table = newImportTable(r.funcs)
		r.funcs = nil
	}
	return r.table
}

// ImportTable is an immutable snapshot of host functions keyed by
// namespace and name.
type ImportTable struct {
	funcs      map[string]map[string]*FuncDef
	namespaces []string
	n          int
}

func newImportTable(funcs map[string]map[string]*FuncDef) *ImportTable {
	t := &ImportTable{funcs: funcs}
	for ns, fns := range funcs {
		t.namespaces = append(t.namespaces, ns)
		t.n += len(fns)
	}
	sort.Strings(t.namespaces)
	return t
}

// EmptyTable returns a table with no functions.
func EmptyTable() *ImportTable {
	return newImportTable(nil)
}

// Lookup returns the definition bound to namespace#name.
func (t *ImportTable) Lookup(namespace, name string) (*FuncDef, bool) {
	if t == nil {
		return nil, false
	}
	f, ok := t.funcs[namespace][name]
	return f, ok
}

// Namespaces returns namespace names in sorted order.
func (t *ImportTable) Namespaces() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.namespaces...)
}

// Funcs returns the definitions of one namespace sorted by name.
func (t *ImportTable) Funcs(namespace string) []*FuncDef {
	if t == nil {
		return nil
	}
	fns := t.funcs[namespace]
	out := make([]*FuncDef, 0, len(fns))
	for _, f := range fns {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of functions in the table.
func (t *ImportTable) Len() int {
	if t == nil {
		return 0
	}
	return t.n
}
