package engine

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	wasmenclave "github.com/wippyai/wasm-enclave"
	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/wat"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages caps linear memory per instance in 64KiB pages.
	// 0 keeps wazero's default of 65536 pages.
	MemoryLimitPages uint32

	// CacheDir persists compiled code across processes. Each backend gets its
	// own subdirectory. Empty keeps the cache in memory only.
	CacheDir string
}

// Engine compiles modules and hands out runtimes for instantiating them.
// It keeps one compilation cache per backend, so a module compiled once is
// not recompiled when instances are created from it.
type Engine struct {
	backends map[Backend]*backendState
	cfg      Config
	mu       sync.Mutex
	closed   bool
}

type backendState struct {
	cache   wazero.CompilationCache
	config  wazero.RuntimeConfig
	compile wazero.Runtime // compiles and validates only, never instantiates
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	e := &Engine{backends: make(map[Backend]*backendState)}
	if cfg != nil {
		e.cfg = *cfg
	}
	Logger().Debug("engine created",
		zap.Uint32("memory_limit_pages", e.cfg.MemoryLimitPages),
		zap.String("cache_dir", e.cfg.CacheDir))
	return e, nil
}

// backend returns the lazily created state for b.
func (e *Engine) backend(ctx context.Context, b Backend) (*backendState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.Closed("engine")
	}
	if st, ok := e.backends[b]; ok {
		return st, nil
	}

	var cache wazero.CompilationCache
	if e.cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(filepath.Join(e.cfg.CacheDir, b.String()))
		if err != nil {
			return nil, errors.Compile(errors.KindBackend, "open compilation cache", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	config, err := backendConfig(b)
	if err != nil {
		_ = cache.Close(ctx)
		return nil, err
	}
	config = config.WithCompilationCache(cache)
	if e.cfg.MemoryLimitPages > 0 {
		config = config.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}

	rt, err := newRuntime(ctx, config)
	if err != nil {
		_ = cache.Close(ctx)
		return nil, err
	}

	st := &backendState{cache: cache, config: config, compile: rt}
	e.backends[b] = st
	Logger().Debug("backend initialized", zap.Stringer("backend", b))
	return st, nil
}

func backendConfig(b Backend) (cfg wazero.RuntimeConfig, err error) {
	if !b.valid() {
		return nil, errors.Compile(errors.KindBackend, fmt.Sprintf("unknown backend %d", uint8(b)), nil)
	}
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			err = errors.Compile(errors.KindBackend, fmt.Sprintf("%s backend unavailable on this platform: %v", b, r), nil)
		}
	}()
	return b.runtimeConfig(), nil
}

// newRuntime creates a runtime, converting the panic wazero raises for an
// unsupported compiler into a backend error.
func newRuntime(ctx context.Context, config wazero.RuntimeConfig) (rt wazero.Runtime, err error) {
	defer func() {
		if r := recover(); r != nil {
			rt = nil
			err = errors.Compile(errors.KindBackend, fmt.Sprintf("create runtime: %v", r), nil)
		}
	}()
	return wazero.NewRuntimeWithConfig(ctx, config), nil
}

// Compile verifies src and lowers it for backend. On failure nothing is
// returned and no partially compiled state is kept.
func (e *Engine) Compile(ctx context.Context, src wasmenclave.Source, backend Backend) (*Module, error) {
	bin, err := binaryOf(src)
	if err != nil {
		return nil, err
	}

	st, err := e.backend(ctx, backend)
	if err != nil {
		return nil, err
	}

	compiled, err := st.compile.CompileModule(ctx, bin)
	if err != nil {
		return nil, classifyCompileError(err)
	}

	if err := checkImportKinds(bin); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	m := newModule(e, src.Name(), backend, bin, compiled)
	Logger().Debug("module compiled",
		zap.String("name", m.name),
		zap.Stringer("backend", backend),
		zap.Int("size", len(bin)),
		zap.Int("imports", len(m.imports)),
		zap.Int("exports", len(m.exports)),
		zap.Stringer("fingerprint", m.fingerprint))
	return m, nil
}

// binaryOf returns the wasm binary for src, translating text first.
func binaryOf(src wasmenclave.Source) ([]byte, error) {
	switch src.Format() {
	case wasmenclave.FormatText:
		return wat.Compile(string(src.Bytes()))
	case wasmenclave.FormatBinary:
		bin := src.Bytes()
		if len(bin) < len(wasmHeader) || !bytes.Equal(bin[:4], wasmHeader[:4]) {
			return nil, errors.Compile(errors.KindMalformed, "missing wasm magic number", nil)
		}
		if !bytes.Equal(bin[4:8], wasmHeader[4:]) {
			return nil, errors.Compile(errors.KindUnsupported, fmt.Sprintf("binary version %x", bin[4:8]), nil)
		}
		return bin, nil
	}
	return nil, errors.Compile(errors.KindMalformed, fmt.Sprintf("unknown source format %d", src.Format()), nil)
}

func classifyCompileError(err error) *errors.Error {
	msg := err.Error()
	if strings.Contains(msg, "feature") && strings.Contains(msg, "disabled") {
		return errors.Compile(errors.KindUnsupported, "module uses a disabled feature", err)
	}
	return errors.Compile(errors.KindMalformed, "invalid module", err)
}

// NewRuntime returns a private runtime for one instance of a module compiled
// for backend. It shares the backend's compilation cache.
func (e *Engine) NewRuntime(ctx context.Context, backend Backend) (wazero.Runtime, error) {
	st, err := e.backend(ctx, backend)
	if err != nil {
		return nil, err
	}
	return newRuntime(ctx, st.config)
}

// Close releases compile runtimes and caches. Modules compiled by this engine
// should be closed first.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for b, st := range e.backends {
		if err := st.compile.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s runtime: %w", b, err))
		}
		if err := st.cache.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s cache: %w", b, err))
		}
	}
	e.backends = nil
	return joinErrors(errs)
}
