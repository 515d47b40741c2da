// Package middleware provides the Kratos middleware composing GuardLane's
// guards into a request path.
package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	nethttp "net/http"

	"GuardLane/internal/metrics"
	"GuardLane/pkg/ratelimit"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"

	pkglog "GuardLane/pkg/log"
)

// ReasonRateLimitExceeded is the kratos error reason for limiter rejections.
const ReasonRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// MetadataRetryAfter is the error metadata key the transport layer turns
// into the Retry-After header.
const MetadataRetryAfter = "retry_after"

// RateLimit returns server middleware enforcing the limiter per client IP.
// Rejections become kratos 429 errors carrying the retry hint; the HTTP
// error encoder maps the hint to a Retry-After header.
func RateLimit(name string, l *ratelimit.Limiter, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			key := ClientKey(ctx)

			allowed, retryAfter := l.Allow(key)
			metrics.ObserveRateLimitDecision(name, allowed)
			if !allowed {
				secs := int64(math.Ceil(retryAfter.Seconds()))
				rc := pkglog.GetRequestContext(ctx)
				logger.RateLimit("request rejected",
					"limiter", name,
					"key", key,
					"request_id", rc.RequestID,
					"retry_after_seconds", secs,
				)
				return nil, errors.New(
					429,
					ReasonRateLimitExceeded,
					fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs),
				).WithMetadata(map[string]string{
					MetadataRetryAfter: strconv.FormatInt(secs, 10),
				})
			}

			return handler(ctx, req)
		}
	}
}

// ClientKey derives the limiter key for the current request: the client IP
// for HTTP transports, "unknown" otherwise.
func ClientKey(ctx context.Context) string {
	tr, ok := transport.FromServerContext(ctx)
	if !ok {
		return "unknown"
	}
	ht, ok := tr.(http.Transporter)
	if !ok {
		return "unknown"
	}
	return extractClientIP(ht.Request())
}

// extractClientIP extracts the real client IP from the request.
// Priority: X-Real-IP > X-Forwarded-For (first entry) > RemoteAddr.
func extractClientIP(req *nethttp.Request) string {
	if req == nil {
		return "unknown"
	}

	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}
