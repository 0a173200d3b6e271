package reqctx

import (
	"context"
	"time"
)

type ctxKey int

const (
	keyRequestMeta ctxKey = iota
	keyClaims
)

// RequestMeta is what the HTTP edge knows about a request before any
// handler runs.
type RequestMeta struct {
	RequestID   string
	ClientIP    string
	UserAgent   string
	RequestedAt time.Time
	// Streaming is set for long-lived event-stream requests.
	Streaming bool
}

func WithRequestMeta(ctx context.Context, meta *RequestMeta) context.Context {
	return context.WithValue(ctx, keyRequestMeta, meta)
}

// RequestMetaFromContext returns nil, false if middleware did not run.
func RequestMetaFromContext(ctx context.Context) (*RequestMeta, bool) {
	meta, ok := ctx.Value(keyRequestMeta).(*RequestMeta)
	return meta, ok && meta != nil
}

// RequestIDFromContext returns "" when no request metadata is attached.
func RequestIDFromContext(ctx context.Context) string {
	if meta, ok := RequestMetaFromContext(ctx); ok {
		return meta.RequestID
	}
	return ""
}

// LogAttrs returns slog key/value pairs identifying the request and the
// caller, suitable for spreading into a slog call.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if meta, ok := RequestMetaFromContext(ctx); ok {
		attrs = append(attrs, "request_id", meta.RequestID)
		if meta.Streaming {
			attrs = append(attrs, "streaming", true)
		}
	}
	if id, ok := UserIDFromContext(ctx); ok {
		attrs = append(attrs, "user_id", id.String())
	}
	return attrs
}
