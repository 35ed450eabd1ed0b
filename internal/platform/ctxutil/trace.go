package ctxutil

import "context"

// Trace identifies one inbound request in logs and response headers.
type Trace struct {
	TraceID   string
	RequestID string
}

type traceKey struct{}

func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

func TraceFrom(ctx context.Context) (Trace, bool) {
	if ctx == nil {
		return Trace{}, false
	}
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}

// TraceFields returns the request ids as logger key/value pairs, or nil.
func TraceFields(ctx context.Context) []any {
	t, ok := TraceFrom(ctx)
	if !ok {
		return nil
	}
	return []any{"trace_id", t.TraceID, "request_id", t.RequestID}
}
