package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // source loading
	PhaseCompile  Phase = "compile"  // WAT translation, validation, lowering
	PhaseHost     Phase = "host"     // host import registration
	PhaseLink     Phase = "link"     // import resolution and instantiation
	PhaseInvoke   Phase = "invoke"   // export calls
	PhaseValidate Phase = "validate" // untrusted region checks
	PhaseDecode   Phase = "decode"   // request decoding inside the enclave
	PhaseRuntime  Phase = "runtime"  // lifecycle misuse
)

// Kind categorizes the error
type Kind string

const (
	KindMalformed         Kind = "malformed"
	KindUnsupported       Kind = "unsupported"
	KindBackend           Kind = "backend"
	KindInvalidInput      Kind = "invalid_input"
	KindDuplicateImport   Kind = "duplicate_import"
	KindFrozenRegistry    Kind = "frozen_registry"
	KindMissingImport     Kind = "missing_import"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindInstantiation     Kind = "instantiation"
	KindNotFound          Kind = "not_found"
	KindArgumentMismatch  Kind = "argument_mismatch"
	KindTrap              Kind = "trap"
	KindUnusable          Kind = "unusable"
	KindClosed            Kind = "closed"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindNilPointer        Kind = "nil_pointer"
	KindTooLarge          Kind = "too_large"
	KindOutOfBounds       Kind = "out_of_bounds"
)

// Sentinels for errors.Is. Matching compares Phase and Kind only.
var (
	ErrMalformed         = &Error{Phase: PhaseCompile, Kind: KindMalformed}
	ErrUnsupported       = &Error{Phase: PhaseCompile, Kind: KindUnsupported}
	ErrBackend           = &Error{Phase: PhaseCompile, Kind: KindBackend}
	ErrDuplicateImport   = &Error{Phase: PhaseHost, Kind: KindDuplicateImport}
	ErrFrozenRegistry    = &Error{Phase: PhaseHost, Kind: KindFrozenRegistry}
	ErrUnsatisfiedImport = &Error{Phase: PhaseLink, Kind: KindMissingImport}
	ErrImportSignature   = &Error{Phase: PhaseLink, Kind: KindSignatureMismatch}
	ErrInstantiation     = &Error{Phase: PhaseLink, Kind: KindInstantiation}
	ErrExportNotFound    = &Error{Phase: PhaseInvoke, Kind: KindNotFound}
	ErrArgumentMismatch  = &Error{Phase: PhaseInvoke, Kind: KindArgumentMismatch}
	ErrTrap              = &Error{Phase: PhaseInvoke, Kind: KindTrap}
	ErrInstanceUnusable  = &Error{Phase: PhaseInvoke, Kind: KindUnusable}
	ErrInvalidUTF8       = &Error{Phase: PhaseDecode, Kind: KindInvalidUTF8}
	ErrNilPointer        = &Error{Phase: PhaseValidate, Kind: KindNilPointer}
	ErrTooLarge          = &Error{Phase: PhaseValidate, Kind: KindTooLarge}
	ErrRegionOutOfBounds = &Error{Phase: PhaseValidate, Kind: KindOutOfBounds}
)

// Error is the structured error type used throughout the module
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Namespace string // import namespace, when the error concerns one
	Name      string // import or export name
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	switch {
	case e.Namespace != "" && e.Name != "":
		b.WriteString(" at ")
		b.WriteString(e.Namespace)
		b.WriteByte('#')
		b.WriteString(e.Name)
	case e.Name != "":
		b.WriteString(" at ")
		b.WriteString(e.Name)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// PhaseOf returns the phase of the outermost structured error in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase, true
	}
	var m *MissingImportsError
	if stderrors.As(err, &m) {
		return PhaseLink, true
	}
	return "", false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Import sets the import namespace and name
func (b *Builder) Import(namespace, name string) *Builder {
	b.err.Namespace = namespace
	b.err.Name = name
	return b
}

// Name sets the export or function name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string) *Builder {
	b.err.Detail = msg
	return b
}

// Detailf sets a formatted detail message.
func (b *Builder) Detailf(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Compile creates a compilation error of the given kind
func Compile(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// DuplicateImport reports a second registration of namespace#name
func DuplicateImport(namespace, name string) *Error {
	return &Error{
		Phase:     PhaseHost,
		Kind:      KindDuplicateImport,
		Namespace: namespace,
		Name:      name,
		Detail:    "already registered",
	}
}

// FrozenRegistry reports a registration attempted after Build
func FrozenRegistry(namespace, name string) *Error {
	return &Error{
		Phase:     PhaseHost,
		Kind:      KindFrozenRegistry,
		Namespace: namespace,
		Name:      name,
		Detail:    "registry is frozen after build",
	}
}

// ImportSignature reports a binding whose type differs from the declared import
func ImportSignature(namespace, name, want, got string) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindSignatureMismatch,
		Namespace: namespace,
		Name:      name,
		Detail:    fmt.Sprintf("module expects %s, host provides %s", want, got),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// ExportNotFound reports a call to a function the instance does not export
func ExportNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindNotFound,
		Name:   name,
		Detail: "no exported function",
	}
}

// ArgumentMismatch reports arguments that disagree with an export's signature
func ArgumentMismatch(name, detail string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindArgumentMismatch,
		Name:   name,
		Detail: detail,
	}
}

// Trap wraps a fault raised by guest code
func Trap(name string, cause error) *Error {
	reason := "trap"
	if cause != nil {
		reason = cause.Error()
	}
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindTrap,
		Name:   name,
		Detail: reason,
		Cause:  cause,
	}
}

// InstanceUnusable is returned for calls on an instance that already trapped
func InstanceUnusable(name string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindUnusable,
		Name:   name,
		Detail: "instance trapped earlier and must be re-instantiated",
	}
}

// Closed reports use of a closed module or instance
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// InvalidUTF8 creates an invalid UTF-8 error. Only the offset is recorded,
// never the bytes themselves.
func InvalidUTF8(data []byte) *Error {
	offset := 0
	for offset < len(data) {
		r, size := utf8.DecodeRune(data[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence at offset %d", offset),
	}
}

// NilPointer reports an untrusted region with no address
func NilPointer() *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindNilPointer,
		Detail: "nil region pointer",
	}
}

// TooLarge reports an untrusted region above the copy ceiling
func TooLarge(length, limit uint64) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindTooLarge,
		Detail: fmt.Sprintf("region of %d bytes exceeds limit of %d", length, limit),
	}
}

// RegionOutOfBounds reports a region that wraps the address space
func RegionOutOfBounds(addr, length uint64) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("region 0x%x+%d wraps the address space", addr, length),
	}
}

// Load creates a source loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "env"
	Function  string // e.g., "say_hello"
}

// MissingImportsError is returned when instantiation fails because the import
// table does not provide every function the module declares.
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[link] missing_import: %d host function(s) unsatisfied:\n", len(e.Imports))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type. It also matches
// ErrUnsatisfiedImport.
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Phase == PhaseLink && t.Kind == KindMissingImport
	}
	return false
}

// Contains reports whether namespace#name is among the missing imports.
func (e *MissingImportsError) Contains(namespace, name string) bool {
	for _, imp := range e.Imports {
		if imp.Namespace == namespace && imp.Function == name {
			return true
		}
	}
	return false
}
