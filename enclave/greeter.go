package enclave

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/wippyai/wasm-enclave/errors"
)

// Enclave-resident pieces of the greeting.
const greetingPrefix = "This is an in-enclave "

var (
	greetingWord   = [...]byte{'G', 'o'}
	greetingSuffix = []byte{' ', 's', 't', 'r', 'i', 'n', 'g', '!'}
)

// Greeting returns the sentence assembled from the enclave's constants.
func Greeting() string {
	var b strings.Builder
	b.WriteString(greetingPrefix)
	for _, c := range greetingWord {
		b.WriteByte(c)
	}
	b.Write(greetingSuffix)
	return b.String()
}

// Greeter is the default Processor. It decodes the request as UTF-8 text,
// writes it followed by the greeting to the untrusted output channel, then
// runs its workload.
type Greeter struct {
	out      io.Writer
	workload Workload
}

// NewGreeter creates a Greeter. A nil workload skips that step; a nil out
// discards output.
func NewGreeter(out io.Writer, workload Workload) *Greeter {
	if out == nil {
		out = io.Discard
	}
	return &Greeter{out: out, workload: workload}
}

func (g *Greeter) Process(ctx context.Context, req *Buffer) error {
	data := req.Bytes()
	if !utf8.Valid(data) {
		return errors.InvalidUTF8(data)
	}

	reply := string(data) + "\n" + Greeting() + "\n"
	if _, err := io.WriteString(g.out, reply); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}

	if g.workload == nil {
		return nil
	}
	return g.workload.Run(ctx)
}

// SyncWriter serializes writes to an output channel shared by concurrent
// requests.
type SyncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewSyncWriter(w io.Writer) *SyncWriter {
	return &SyncWriter{w: w}
}

func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
