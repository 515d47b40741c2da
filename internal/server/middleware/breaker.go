package middleware

import (
	"context"
	"strconv"

	"GuardLane/pkg/breaker"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"

	pkglog "GuardLane/pkg/log"
)

// ReasonServiceUnavailable is the kratos error reason for breaker-open
// rejections.
const ReasonServiceUnavailable = "SERVICE_UNAVAILABLE"

// MetadataDependency names the tripped downstream in the error metadata.
const MetadataDependency = "dependency"

// Breaker returns middleware running the handler chain through the circuit
// breaker. Intended for outbound call sites: compose it into the client
// stack that talks to the dependency the breaker guards.
//
// A breaker-open rejection becomes a kratos 503 carrying the dependency
// name and the remaining cooldown; any other outcome passes through
// unchanged after the breaker's own bookkeeping.
func Breaker(cb *breaker.CircuitBreaker, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			result, err := cb.Execute(ctx, func(c context.Context) (interface{}, error) {
				return handler(c, req)
			})
			if sue, ok := breaker.IsServiceUnavailable(err); ok {
				rc := pkglog.GetRequestContext(ctx)
				logger.Breaker("call rejected while open",
					"dependency", sue.Dependency,
					"request_id", rc.RequestID,
					"retry_after_seconds", sue.RetryAfterSeconds(),
				)
				return nil, errors.New(503, ReasonServiceUnavailable, sue.Error()).
					WithMetadata(map[string]string{
						MetadataDependency: sue.Dependency,
						MetadataRetryAfter: strconv.FormatInt(sue.RetryAfterSeconds(), 10),
					})
			}
			return result, err
		}
	}
}
