package diag

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rrrd/rrr/services/diagnostic"
)

// subscriberCore forwards every emitted entry to a diagnostic fan-out
// service as key/value pairs, so N subscribers (a capturing test sink, a
// metrics bridge) observe the same events the primary sink writes.
type subscriberCore struct {
	zapcore.LevelEnabler
	svc    diagnostic.Service
	fields []zapcore.Field
}

// NewSubscriberContext builds a Context that tees every event through
// primary and also hands it to svc's subscribers.
func NewSubscriberContext(primary zapcore.Core, svc diagnostic.Service, enab zapcore.LevelEnabler) Context {
	sub := &subscriberCore{LevelEnabler: enab, svc: svc}
	return Context{logger: zap.New(zapcore.NewTee(primary, sub))}
}

func (c *subscriberCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &subscriberCore{LevelEnabler: c.LevelEnabler, svc: c.svc, fields: merged}
}

func (c *subscriberCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *subscriberCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	keyvals := make([]interface{}, 0, 4+2*len(enc.Fields))
	keyvals = append(keyvals, "lvl", ent.Level.String(), "msg", ent.Message)
	for k, v := range enc.Fields {
		keyvals = append(keyvals, k, v)
	}
	return c.svc.Handle(keyvals)
}

func (c *subscriberCore) Sync() error { return nil }
