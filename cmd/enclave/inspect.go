package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-enclave/enclave"
	"github.com/wippyai/wasm-enclave/runtime"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Compile a module and print its manifest",
		Long: `Compile a .wat or .wasm module and print its manifest as YAML: imports,
exports, memories and the content fingerprint. Without a file the hosted
module from the config is inspected.

With --cbor the deterministic CBOR encoding of the manifest is written to
the given path instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().String("cbor", "", "Write the CBOR manifest to this file")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cfg.Enclave.Module
	if len(args) > 0 {
		path = args[0]
	}
	loader := enclave.DefaultLoader()
	if path != "" {
		loader = enclave.FileLoader{Path: path}
	}

	rt, err := runtime.New(ctx, &runtime.Config{
		Engine:  *cfg.EngineConfig(),
		Backend: cfg.Backend(),
	})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	mod, err := rt.LoadFrom(ctx, loader)
	if err != nil {
		return err
	}
	manifest := mod.Manifest()

	if cborPath, _ := cmd.Flags().GetString("cbor"); cborPath != "" {
		data, err := manifest.EncodeCBOR()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cborPath, data, 0o644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s (fingerprint %s)\n", len(data), cborPath, manifest.Fingerprint)
		return nil
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(manifest); err != nil {
		return err
	}
	return enc.Close()
}
