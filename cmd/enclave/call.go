package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-enclave/enclave"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call [message]",
		Short: "Send one request through the enclave gate",
		Long: `Send a message through the enclave gate and print the resulting status.

The message is taken from the argument, or read from stdin when no argument
is given. Output produced inside the enclave is written to stdout before the
status line. The command fails unless the status is success.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCall,
	}
	cmd.Flags().BoolP("quiet", "q", false, "Only print the status")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var msg []byte
	if len(args) > 0 {
		msg = []byte(args[0])
	} else {
		msg, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	quiet, _ := cmd.Flags().GetBool("quiet")
	sink := out
	if quiet {
		sink = io.Discard
	}

	h, err := newHost(ctx, cfg, sink)
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	status := h.gate.Call(ctx, msg)
	fmt.Fprintf(out, "status: %s\n", renderStatus(out, status))
	if status != enclave.StatusSuccess {
		return fmt.Errorf("request failed with status %s", status)
	}
	return nil
}
