package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	wasmenclave "github.com/wippyai/wasm-enclave"
)

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	e := newTestEngine(t)
	if _, err := e.Compile(context.Background(), wasmenclave.TextSource("hello", helloWAT), BackendInterpreter); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	entries := logs.FilterMessage("module compiled").All()
	if len(entries) != 1 {
		t.Fatalf("got %d compile entries, want 1", len(entries))
	}
	if entries[0].LoggerName != "engine" {
		t.Errorf("logger name = %q, want engine", entries[0].LoggerName)
	}

	SetLogger(nil)
	if Logger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("nil logger should be a no-op")
	}
}
