package linker

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the linker package's logger. It is a no-op logger until
// SetLogger is called.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the linker package's logger. A nil logger silences it.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger.Store(zap.NewNop())
		return
	}
	logger.Store(l.Named("linker"))
}
