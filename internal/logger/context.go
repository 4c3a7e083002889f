package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext holds the request-scoped fields added by the *Ctx functions.
type LogContext struct {
	TraceID   string
	SpanID    string
	Tenant    string
	Kind      string // store, delete, availability, ...
	GroupID   string
	StartTime time.Time
}

// WithContext returns a copy of ctx carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext for tenant.
func NewLogContext(tenant string) *LogContext {
	return &LogContext{Tenant: tenant, StartTime: time.Now()}
}

// Clone returns a copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithKind returns a copy with the request kind set.
func (lc *LogContext) WithKind(kind string) *LogContext {
	return lc.with(func(c *LogContext) { c.Kind = kind })
}

// WithGroup returns a copy with the request group set.
func (lc *LogContext) WithGroup(groupID string) *LogContext {
	return lc.with(func(c *LogContext) { c.GroupID = groupID })
}

// WithTrace returns a copy with the span identifiers set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	return lc.with(func(c *LogContext) { c.TraceID, c.SpanID = traceID, spanID })
}

func (lc *LogContext) with(set func(*LogContext)) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		set(clone)
	}
	return clone
}

// DurationMs returns the milliseconds elapsed since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

// fields returns the non-empty fields as slog key/value pairs.
func (lc *LogContext) fields() []any {
	out := make([]any, 0, 10)
	for _, kv := range [...]struct{ key, value string }{
		{KeyTraceID, lc.TraceID},
		{KeySpanID, lc.SpanID},
		{KeyTenant, lc.Tenant},
		{KeyKind, lc.Kind},
		{KeyGroupID, lc.GroupID},
	} {
		if kv.value != "" {
			out = append(out, kv.key, kv.value)
		}
	}
	return out
}
