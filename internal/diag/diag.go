// Package diag carries the per-subsystem diagnostic context threaded
// through the core runtime's constructors. There is no process-global
// debug level: each component receives a Context naming it, and tests
// substitute a capturing zap core to observe what a component logged.
package diag

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context is one subsystem's handle into the logging fabric. The zero
// value is unusable; obtain one from NewContext or a parent's With.
type Context struct {
	logger *zap.Logger
}

// NewContext wraps a zap logger. Pass zap.NewNop() where a component's
// output is unwanted.
func NewContext(logger *zap.Logger) Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Context{logger: logger}
}

// NewProduction builds a Context over zap's production configuration.
func NewProduction() (Context, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return Context{}, err
	}
	return Context{logger: logger}, nil
}

// With derives a child context carrying additional identifying fields,
// typically the module and instance names.
func (c Context) With(fields ...zap.Field) Context {
	return Context{logger: c.logger.With(fields...)}
}

// Named derives a child with a dot-joined name segment.
func (c Context) Named(name string) Context {
	return Context{logger: c.logger.Named(name)}
}

func (c Context) Debug(msg string, fields ...zap.Field) { c.logger.Debug(msg, fields...) }
func (c Context) Info(msg string, fields ...zap.Field)  { c.logger.Info(msg, fields...) }
func (c Context) Warn(msg string, fields ...zap.Field)  { c.logger.Warn(msg, fields...) }
func (c Context) Error(msg string, fields ...zap.Field) { c.logger.Error(msg, fields...) }

// Enabled reports whether the underlying core would emit at lvl, so hot
// paths can skip building fields.
func (c Context) Enabled(lvl zapcore.Level) bool {
	return c.logger.Core().Enabled(lvl)
}

// Sync flushes buffered output.
func (c Context) Sync() error { return c.logger.Sync() }
