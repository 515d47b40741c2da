package log

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// contextKey is the private key type for the request context value.
type contextKey string

const requestContextKey contextKey = "guardlane_request_context"

// RequestContext carries per-request tracing information across middleware
// and handlers.
type RequestContext struct {
	RequestID string
	ClientIP  string
	StartTime time.Time
}

// GenerateRequestID returns a short unique request ID (first uuid block,
// e.g. "9f4c1e2a").
func GenerateRequestID() string {
	id := uuid.NewString()
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// WithRequestContext injects request tracing information into ctx.
// Called by the logging middleware at the start of each request.
func WithRequestContext(ctx context.Context, requestID, clientIP string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		RequestID: requestID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	})
}

// GetRequestContext extracts the request context for downstream middleware,
// returning a placeholder when none was injected.
func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{RequestID: "unknown"}
}
