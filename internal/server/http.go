package server

import (
	nethttp "net/http"

	"GuardLane/internal/biz"
	"GuardLane/internal/conf"
	"GuardLane/internal/server/middleware"
	"GuardLane/internal/service"
	pkglog "GuardLane/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	kmiddleware "github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiLimiterName is the limiter guarding the /api route group. Each route
// group that wants throttling names its own limiter; sharing one across
// unrelated endpoints must be an explicit choice, never an accident.
const apiLimiterName = "api"

// NewHTTPServer builds the HTTP server with the guard middleware chain.
func NewHTTPServer(c *conf.Server, registry *biz.GuardRegistry, svc *service.GuardService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	ms := []kmiddleware.Middleware{
		recovery.Recovery(),
		middleware.Logging(logHelper),
	}

	// The rate limiter guards only the /api prefix: health probes and
	// metrics scrapes are never throttled.
	if l, ok := registry.Limiter(apiLimiterName); ok {
		ms = append(ms, selector.Server(
			middleware.RateLimit(apiLimiterName, l, logHelper),
		).Prefix("/api/").Build())
	} else {
		logHelper.Startup("no limiter named 'api' configured; /api routes are unthrottled")
	}

	opts := []http.ServerOption{
		http.Middleware(ms...),
		http.ErrorEncoder(errorEncoder),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout > 0 {
		opts = append(opts, http.Timeout(c.Http.Timeout))
	}
	srv := http.NewServer(opts...)

	svc.RegisterRoutes(srv)
	srv.Handle("/metrics", promhttp.Handler())

	return srv
}

// errorEncoder writes guard rejections with their admission-control
// metadata: a 429 or 503 carrying retry_after becomes a Retry-After header
// (whole seconds) alongside the standard kratos error body.
func errorEncoder(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	se := errors.FromError(err)
	if retry, ok := se.Metadata[middleware.MetadataRetryAfter]; ok {
		w.Header().Set("Retry-After", retry)
	}
	http.DefaultErrorEncoder(w, r, err)
}
