// Package log implements Component J: a structured, leveled log sink used
// by every other component, keeping the teacher's minimal io.Writer-
// wrapping Logger facade but backing it with a sugared zap core so level
// and component tag are real fields rather than string formatting.
package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a minimal wrapper kept in the teacher's shape: callers log
// through it without knowing the backing implementation.
type Logger struct {
	sugar     *zap.SugaredLogger
	component string
}

// New returns a Logger that writes JSON-structured lines to w at level
// or above. component tags every line emitted through this Logger (and
// any Logger produced by With).
func New(w io.Writer, level zapcore.Level, component string) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(w),
		level,
	)
	logger := zap.New(core)
	return &Logger{sugar: logger.Sugar().With("component", component), component: component}
}

// With returns a Logger tagged with a different component name, sharing
// the same underlying sink.
func (l *Logger) With(component string) *Logger {
	return &Logger{sugar: l.sugar.Desugar().Sugar().With("component", component), component: component}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes any buffered log entries; callers should defer it after
// constructing the root Logger.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
