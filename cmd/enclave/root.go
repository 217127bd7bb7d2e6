package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-enclave/config"
	"github.com/wippyai/wasm-enclave/enclave"
	"github.com/wippyai/wasm-enclave/engine"
	"github.com/wippyai/wasm-enclave/linker"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "enclave",
		Short: "Host a WebAssembly module behind an enclave boundary",
		Long: `enclave - send requests across a trust boundary into a WebAssembly host.

Each request is validated and copied into the enclave, echoed together with
a greeting, and then drives the hosted module's run export. Only a status
code comes back out.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Config file (default: $"+config.EnvVar+")")
	root.PersistentFlags().String("backend", "", "Override engine backend: auto, compiler, interpreter")
	root.PersistentFlags().String("module", "", "Override hosted module (.wat or .wasm)")

	root.AddCommand(newCallCmd(), newInspectCmd(), newConsoleCmd())
	return root
}

// loadConfig resolves the config and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, err
	}

	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		cfg.Engine.Backend = b
	}
	if m, _ := cmd.Flags().GetString("module"); m != "" {
		cfg.Enclave.Module = m
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// host is one assembled enclave: engine, hosted workload and gate.
type host struct {
	logger   *zap.Logger
	engine   *engine.Engine
	workload *enclave.HelloWorkload
	gate     *enclave.Gate
}

// newHost wires the default pipeline. Guest and greeting output go to out.
func newHost(ctx context.Context, cfg *config.Config, out io.Writer) (*host, error) {
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	engine.SetLogger(logger)
	linker.SetLogger(logger)

	eng, err := engine.New(ctx, cfg.EngineConfig())
	if err != nil {
		return nil, err
	}

	loader := enclave.DefaultLoader()
	if cfg.Enclave.Module != "" {
		loader = enclave.FileLoader{Path: cfg.Enclave.Module}
	}

	sink := enclave.NewSyncWriter(out)
	workload := enclave.NewHelloWorkload(eng, loader, sink,
		enclave.WithBackend(cfg.Backend()),
		enclave.WithHelloLogger(logger.Named("workload")))

	gate := enclave.NewGate(
		enclave.WithProcessor(enclave.NewGreeter(sink, workload)),
		enclave.WithLogger(logger.Named("gate")),
		enclave.WithMaxRequestBytes(uintptr(cfg.Enclave.MaxRequestBytes)),
	)

	return &host{logger: logger, engine: eng, workload: workload, gate: gate}, nil
}

func (h *host) Close(ctx context.Context) error {
	err := h.workload.Close(ctx)
	if cerr := h.engine.Close(ctx); err == nil {
		err = cerr
	}
	_ = h.logger.Sync()
	return err
}
