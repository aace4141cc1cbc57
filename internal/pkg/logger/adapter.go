package logger

import (
	"io"
	"log/slog"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
)

// slogAdapter implements port.Logger on top of a slog.Logger.
// A nil inner logger resolves to the package global on every call.
type slogAdapter struct {
	inner *slog.Logger
}

// NewSlogAdapter returns a port.Logger writing through the global logger.
func NewSlogAdapter() port.Logger {
	return &slogAdapter{}
}

// NewNopLogger returns a port.Logger that discards everything.
func NewNopLogger() port.Logger {
	return &slogAdapter{inner: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (a *slogAdapter) logger() *slog.Logger {
	if a.inner != nil {
		return a.inner
	}
	return current()
}

func (a *slogAdapter) Info(msg string, args ...any) {
	a.logger().Info(msg, args...)
}

func (a *slogAdapter) Debug(msg string, args ...any) {
	a.logger().Debug(msg, args...)
}

func (a *slogAdapter) Warn(msg string, args ...any) {
	a.logger().Warn(msg, args...)
}

func (a *slogAdapter) Error(msg string, args ...any) {
	a.logger().Error(msg, args...)
}

// With binds args to the current global logger.
func (a *slogAdapter) With(args ...any) port.Logger {
	return &slogAdapter{inner: a.logger().With(args...)}
}
