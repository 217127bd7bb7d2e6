package runtime

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-enclave/errors"
)

func TestToSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SayHello", "say_hello"},
		{"Add", "add"},
		{"GetHTTPURL", "get_httpurl"},
		{"HTTPServer", "http_server"},
		{"ParseJSONBody", "parse_json_body"},
		{"ReadU32", "read_u32"},
		{"U32Value", "u32_value"},
		{"X", "x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := toSnakeCase(tt.in); got != tt.want {
				t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHostFuncSignatures(t *testing.T) {
	tests := []struct {
		name    string
		fn      any
		params  string
		results string
		wantErr bool
	}{
		{"void", func() {}, "", "", false},
		{"ctx_only", func(context.Context) {}, "", "", false},
		{"ints", func(a int32, b uint32) int64 { return 0 }, "\x7f\x7f", "\x7e", false},
		{"floats", func(context.Context, float32) float64 { return 0 }, "\x7d", "\x7c", false},
		{"module", func(context.Context, api.Module, bool) {}, "\x7f", "", false},
		{"error_result", func(int64) (int32, error) { return 0, nil }, "\x7e", "\x7f", false},
		{"string_param", func(string) {}, "", "", true},
		{"slice_result", func() []byte { return nil }, "", "", true},
		{"variadic", func(...int32) {}, "", "", true},
		{"not_func", 42, "", "", true},
		{"nil", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hf, err := hostFunc(tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if string(hf.Params) != tt.params || string(hf.Results) != tt.results {
				t.Errorf("signature = %x -> %x", hf.Params, hf.Results)
			}
		})
	}
}

type mathHost struct{ base int32 }

func (mathHost) Namespace() string { return "math" }

func (h mathHost) AddBase(v int32) int32 { return v + h.base }

func (mathHost) Fail(ctx context.Context) error { return stderrors.New("refused") }

func (mathHost) Scale(v float64, by int64) float64 { return v * float64(by) }

type explicitHost struct{}

func (explicitHost) Namespace() string { return "x" }
func (explicitHost) Register() map[string]any {
	return map[string]any{"weird.name": func() int32 { return 3 }}
}

func TestRegisterHost(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	if err := rt.RegisterHost(mathHost{base: 100}); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterHost(explicitHost{}); err != nil {
		t.Fatal(err)
	}

	mod, err := rt.LoadWAT(ctx, `(module
		(import "math" "add_base" (func $add (param i32) (result i32)))
		(import "math" "fail" (func $fail))
		(import "x" "weird.name" (func $w (result i32)))
		(func (export "add") (param i32) (result i32) (call $add (local.get 0)))
		(func (export "weird") (result i32) (call $w))
		(func (export "fail") (call $fail)))`)
	if err != nil {
		t.Fatal(err)
	}
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	if got, err := inst.Call(ctx, "add", int32(1)); err != nil || got != int32(101) {
		t.Errorf("add(1) = %v, %v", got, err)
	}
	if got, err := inst.Call(ctx, "weird"); err != nil || got != int32(3) {
		t.Errorf("weird() = %v, %v", got, err)
	}
	if _, err := inst.Call(ctx, "fail"); !stderrors.Is(err, errors.ErrTrap) {
		t.Errorf("fail() = %v, want trap", err)
	}
}

type emptyNamespace struct{}

func (emptyNamespace) Namespace() string { return "" }

func TestRegisterHostErrors(t *testing.T) {
	rt := newRuntime(t, nil)
	if err := rt.RegisterHost(emptyNamespace{}); err == nil {
		t.Error("empty namespace accepted")
	}
	if err := rt.RegisterFunc("env", "s", func(string) {}); !stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindInvalidInput).Build()) {
		t.Errorf("got %v", err)
	}
}
