package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-enclave/config"
	"github.com/wippyai/wasm-enclave/enclave"
	"github.com/wippyai/wasm-enclave/engine"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvVar, "")

	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(t, "", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"enclave", "call", "inspect", "console", "--config", "--backend"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLICall(t *testing.T) {
	output, err := executeCommand(t, "", "call", "--backend", "interpreter", "abc")
	if err != nil {
		t.Fatalf("call: %v\n%s", err, output)
	}
	want := "abc\n" + enclave.Greeting() + "\nHello, world!\nstatus: success\n"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLICallStdin(t *testing.T) {
	output, err := executeCommand(t, "from stdin", "call", "--backend", "interpreter")
	if err != nil {
		t.Fatalf("call: %v\n%s", err, output)
	}
	if !strings.HasPrefix(output, "from stdin\n") {
		t.Errorf("output = %q", output)
	}
}

func TestCLICallQuiet(t *testing.T) {
	output, err := executeCommand(t, "", "call", "-q", "--backend", "interpreter", "abc")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if output != "status: success\n" {
		t.Errorf("output = %q", output)
	}
}

func TestCLICallFailures(t *testing.T) {
	trap := writeFile(t, "trap.wat", `(module
		(import "env" "say_hello" (func $hello))
		(func (export "run") unreachable))`)
	small := writeFile(t, "small.yaml", "enclave:\n  max_request_bytes: 2\n")

	tests := []struct {
		name       string
		stdin      string
		args       []string
		wantStatus string
	}{
		{"invalid_utf8", "a\xffb", []string{"call"}, "invalid_input"},
		{"over_ceiling", "", []string{"call", "--config", small, "abc"}, "invalid_input"},
		{"trap", "", []string{"call", "--module", trap, "abc"}, "internal_failure"},
		{"missing_module", "", []string{"call", "--module", filepath.Join(t.TempDir(), "none.wat"), "abc"}, "internal_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--backend", "interpreter")
			output, err := executeCommand(t, tt.stdin, args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(output, "status: "+tt.wantStatus) {
				t.Errorf("output %q missing status %s", output, tt.wantStatus)
			}
		})
	}
}

func TestCLIBadConfig(t *testing.T) {
	bad := writeFile(t, "bad.yaml", "engine:\n  backend: jit\n")
	if _, err := executeCommand(t, "", "call", "--config", bad, "abc"); err == nil {
		t.Error("expected config error")
	}
	if _, err := executeCommand(t, "", "call", "--backend", "jit", "abc"); err == nil {
		t.Error("expected backend error")
	}
}

func TestCLIInspect(t *testing.T) {
	output, err := executeCommand(t, "", "inspect", "--backend", "interpreter")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, output)
	}
	for _, phrase := range []string{"module: hello", "backend: interpreter", "fingerprint:", "say_hello", "name: run"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("manifest missing %q:\n%s", phrase, output)
		}
	}
}

func TestCLIInspectCBOR(t *testing.T) {
	mod := writeFile(t, "adder.wat", `(module
		(memory (export "memory") 1)
		(func (export "add") (param i32 i32) (result i32)
			(i32.add (local.get 0) (local.get 1))))`)
	out := filepath.Join(t.TempDir(), "adder.cbor")

	output, err := executeCommand(t, "", "inspect", "--backend", "interpreter", "--cbor", out, mod)
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	m, err := engine.DecodeManifest(data)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if m.Module != "adder" || len(m.Exports) != 1 || m.Exports[0].Name != "add" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Memories) != 1 || m.Memories[0].Min != 1 {
		t.Errorf("memories = %+v", m.Memories)
	}
	if !strings.Contains(output, m.Fingerprint) {
		t.Errorf("output %q missing fingerprint", output)
	}
}

func TestConsoleModel(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Engine.Backend = "interpreter"
	cfg.Log.Level = "error"

	var out bytes.Buffer
	h, err := newHost(ctx, cfg, &out)
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}
	defer h.Close(ctx)

	m := newConsoleModel(ctx, h.gate, &out)
	send := func(line string) {
		t.Helper()
		m.input.SetValue(line)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if cmd == nil {
			t.Fatal("enter produced no command")
		}
		if !m.busy {
			t.Error("model not busy while processing")
		}
		m.Update(cmd())
	}

	send("abc")
	// The text input only holds valid runes, so invalid bytes go straight to send.
	m.Update(m.send("\xff")())

	if m.sent != 2 || len(m.history) != 2 {
		t.Fatalf("sent %d, history %d", m.sent, len(m.history))
	}
	if got := m.history[0]; got.status != enclave.StatusSuccess || !strings.Contains(got.output, "Hello, world!") {
		t.Errorf("first exchange = %+v", got)
	}
	if got := m.history[1]; got.status != enclave.StatusInvalidInput || got.output != "" {
		t.Errorf("second exchange = %+v", got)
	}

	view := m.View()
	for _, phrase := range []string{"Enclave Console", "2 sent", "success", "invalid_input"} {
		if !strings.Contains(view, phrase) {
			t.Errorf("view missing %q", phrase)
		}
	}

	for range historyLimit + 5 {
		send("x")
	}
	if len(m.history) != historyLimit {
		t.Errorf("history = %d, want %d", len(m.history), historyLimit)
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc}); cmd == nil {
		t.Error("esc should quit")
	}
}
