// Package config loads the enclave host's configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the WASM_ENCLAVE_CONFIG environment variable. There is no discovery and
// environment variables never override values in the file; the only
// expansion is ${VAR} and ${VAR:-default} inside path values.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-enclave/engine"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "WASM_ENCLAVE_CONFIG"

// Config is the complete host configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Enclave EnclaveConfig `yaml:"enclave"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig configures compilation.
type EngineConfig struct {
	// Backend is auto, compiler or interpreter.
	Backend string `yaml:"backend"`

	// MemoryLimitPages caps linear memory per instance, in 64 KiB pages.
	// Zero leaves the runtime default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// CacheDir persists compiled code across processes. Empty keeps the
	// cache in memory.
	CacheDir string `yaml:"cache_dir"`
}

// EnclaveConfig configures the boundary gate.
type EnclaveConfig struct {
	// MaxRequestBytes is the largest region copied into the enclave.
	MaxRequestBytes uint32 `yaml:"max_request_bytes"`

	// Module is a .wat or .wasm file to host. Empty uses the built-in
	// hello module.
	Module string `yaml:"module"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend: engine.BackendAuto.String(),
		},
		Enclave: EnclaveConfig{
			MaxRequestBytes: 64 << 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by WASM_ENCLAVE_CONFIG. It fails if the variable
// is not set.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// Resolve picks the config source for a command: the flag value if set,
// then WASM_ENCLAVE_CONFIG, then Default.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvVar) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile loads and validates a config file. Fields absent from the file
// keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, expands path variables and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Engine.CacheDir = expandVars(c.Engine.CacheDir)
	c.Enclave.Module = expandVars(c.Enclave.Module)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := engine.ParseBackend(c.Engine.Backend); err != nil {
		errs = append(errs, fmt.Errorf("engine.backend: %w", err))
	}
	if c.Engine.MemoryLimitPages > 65536 {
		errs = append(errs, fmt.Errorf("engine.memory_limit_pages must be at most 65536, got %d", c.Engine.MemoryLimitPages))
	}
	if c.Enclave.MaxRequestBytes == 0 {
		errs = append(errs, fmt.Errorf("enclave.max_request_bytes must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return stderrors.Join(errs...)
}

// Backend returns the parsed engine backend. Call after Validate.
func (c *Config) Backend() engine.Backend {
	b, _ := engine.ParseBackend(c.Engine.Backend)
	return b
}

// EngineConfig converts the engine section for engine.New.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		MemoryLimitPages: c.Engine.MemoryLimitPages,
		CacheDir:         c.Engine.CacheDir,
	}
}

// NewLogger builds the zap logger described by the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
