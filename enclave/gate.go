package enclave

import (
	"context"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-enclave/errors"
)

// DefaultMaxRequestBytes bounds how much a single request may copy into the
// enclave.
const DefaultMaxRequestBytes = 64 << 10

// Processor handles a request after it has been validated and copied.
type Processor interface {
	Process(ctx context.Context, req *Buffer) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req *Buffer) error

func (f ProcessorFunc) Process(ctx context.Context, req *Buffer) error { return f(ctx, req) }

// Gate is the enclave's single entry point from the untrusted side.
// Each call moves through validate, copy, process and status translation,
// and returns exactly one Status whatever happens inside.
type Gate struct {
	processor Processor
	logger    *zap.Logger
	maxBytes  uintptr
	seq       atomic.Uint64
}

// Option configures a Gate.
type Option func(*Gate)

// WithProcessor replaces the request processor.
func WithProcessor(p Processor) Option {
	return func(g *Gate) { g.processor = p }
}

// WithLogger sets the enclave-side logger. Internal failure detail is only
// ever written here.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMaxRequestBytes sets the copy ceiling. Zero keeps the default.
func WithMaxRequestBytes(n uintptr) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxBytes = n
		}
	}
}

// NewGate creates a gate. Without WithProcessor it accepts and discards
// every valid request.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		processor: ProcessorFunc(func(context.Context, *Buffer) error { return nil }),
		logger:    zap.NewNop(),
		maxBytes:  DefaultMaxRequestBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxRequestBytes returns the copy ceiling.
func (g *Gate) MaxRequestBytes() uintptr { return g.maxBytes }

// ProcessRequest handles an untrusted region of length bytes at ptr.
// The region is not read until the pair has been validated. A zero length
// with a non-nil pointer is an empty message.
func (g *Gate) ProcessRequest(ptr unsafe.Pointer, length uintptr) Status {
	return g.ProcessRequestContext(context.Background(), ptr, length)
}

// ProcessRequestContext is ProcessRequest with a context for the processor.
func (g *Gate) ProcessRequestContext(ctx context.Context, ptr unsafe.Pointer, length uintptr) (status Status) {
	log := g.logger.With(zap.Uint64("request", g.seq.Add(1)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("request processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			status = StatusInternalFailure
		}
		log.Debug("request finished", zap.Stringer("status", status))
	}()

	if err := g.validate(ptr, length); err != nil {
		log.Warn("request rejected", zap.Error(err))
		return StatusInvalidInput
	}

	buf := copyRegion(ptr, length)
	defer buf.Wipe()

	if err := g.processor.Process(ctx, buf); err != nil {
		status = StatusOf(err)
		if status == StatusInvalidInput {
			log.Warn("request rejected", zap.Error(err))
		} else {
			log.Error("request failed", zap.Error(err))
		}
		return status
	}
	return StatusSuccess
}

// Call sends msg through the gate using its backing array as the region.
// A nil slice is rejected like a nil pointer.
func (g *Gate) Call(ctx context.Context, msg []byte) Status {
	return g.ProcessRequestContext(ctx, unsafe.Pointer(unsafe.SliceData(msg)), uintptr(len(msg)))
}

func (g *Gate) validate(ptr unsafe.Pointer, length uintptr) error {
	if ptr == nil {
		return errors.NilPointer()
	}
	if length > g.maxBytes {
		return errors.TooLarge(uint64(length), uint64(g.maxBytes))
	}
	addr := uintptr(ptr)
	if addr+length < addr {
		return errors.RegionOutOfBounds(uint64(addr), uint64(length))
	}
	return nil
}
