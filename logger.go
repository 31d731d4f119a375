package renderpass

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/renderpass/backend"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for renderpass and its backends.
// By default, renderpass produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by renderpass:
//   - [slog.LevelDebug]: per-pass diagnostics (cache hits, barrier counts)
//   - [slog.LevelInfo]: lifecycle events (device created or destroyed)
//   - [slog.LevelWarn]: non-fatal issues (objects still pending at destroy)
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	renderpass.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	// Propagate to backend devices that log on their own.
	devicesMu.Lock()
	devs := slices.Collect(maps.Keys(liveDevices))
	devicesMu.Unlock()
	for _, d := range devs {
		propagateLogger(d, l)
	}
}

// Logger returns the current logger used by renderpass.
// Backend packages call this to share the same logger configuration.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backend devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// liveDevices holds the backend devices of every hub so SetLogger reaches
// them.
var (
	devicesMu   sync.Mutex
	liveDevices = map[backend.Device]struct{}{}
)

func trackDevice(d backend.Device) {
	devicesMu.Lock()
	liveDevices[d] = struct{}{}
	devicesMu.Unlock()
	propagateLogger(d, Logger())
}

func untrackDevice(d backend.Device) {
	devicesMu.Lock()
	delete(liveDevices, d)
	devicesMu.Unlock()
}

// propagateLogger passes the logger to a device if it implements the
// loggerSetter interface.
func propagateLogger(d backend.Device, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
