package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"
)

// UserIDFrom returns the caller identity stored on ctx, or "".
func UserIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(UserID).(string); ok {
		return v
	}
	return ""
}

// TraceIDFrom returns the trace id stored on ctx, or "".
func TraceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(TraceID).(string); ok {
		return v
	}
	return ""
}
