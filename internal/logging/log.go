// Package logging provides the pluggable structured logger shared by the
// server and the client. Both sides depend on the Logger interface rather
// than on *zap.Logger directly so that embedders can swap in their own
// sink without touching lock manager or session code.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the structured logging surface used across the lock service.
// DebugLog carries routine lifecycle events (acquired, extended, released);
// ErrorLog carries conditions that need operator attention.
type Logger interface {
	DebugLog(msg string, fields ...zap.Field)
	ErrorLog(msg string, fields ...zap.Field)

	// WithMeta returns a derived logger with fields attached to every
	// subsequent call, e.g. a per-connection or per-lock sub-logger.
	WithMeta(fields ...zap.Field) Logger

	// Sync flushes any buffered log entries. Called on server/client shutdown.
	Sync() error
}

// zapLogger implements Logger on top of a *zap.Logger.
type zapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing *zap.Logger. Callers that want the pack's
// usual production configuration should build it with zaplog and pass it in.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{logger: logger}
}

func (l *zapLogger) DebugLog(msg string, fields ...zap.Field) {
	l.logger.Debug(msg, fields...)
}

func (l *zapLogger) ErrorLog(msg string, fields ...zap.Field) {
	l.logger.Error(msg, fields...)
}

func (l *zapLogger) WithMeta(fields ...zap.Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// NewNopLogger returns a Logger that discards everything, used by tests and
// by embedders that want the lock service silent.
func NewNopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}
