package engine

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
)

// Backend selects how compiled modules are lowered to executable form.
type Backend uint8

const (
	// BackendAuto uses native compilation where the platform supports it and
	// falls back to the interpreter otherwise.
	BackendAuto Backend = iota
	// BackendCompiler requires native compilation.
	BackendCompiler
	// BackendInterpreter never generates native code.
	BackendInterpreter
)

func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendCompiler:
		return "compiler"
	case BackendInterpreter:
		return "interpreter"
	}
	return fmt.Sprintf("backend(%d)", uint8(b))
}

// ParseBackend accepts the names produced by Backend.String.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "compiler":
		return BackendCompiler, nil
	case "interpreter":
		return BackendInterpreter, nil
	}
	return 0, fmt.Errorf("unknown backend %q (want auto, compiler or interpreter)", s)
}

func (b Backend) valid() bool {
	return b <= BackendInterpreter
}

// runtimeConfig returns the base wazero config for b. NewRuntimeConfigCompiler
// panics on platforms without a compiler, so that case is checked separately.
func (b Backend) runtimeConfig() wazero.RuntimeConfig {
	switch b {
	case BackendCompiler:
		return wazero.NewRuntimeConfigCompiler()
	case BackendInterpreter:
		return wazero.NewRuntimeConfigInterpreter()
	}
	return wazero.NewRuntimeConfig()
}
