package service

import (
	"context"

	"GuardLane/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// GuardService exposes guard observability over HTTP: breaker states for
// health checks and limiter occupancy for diagnostics.
type GuardService struct {
	registry *biz.GuardRegistry
	logger   *log.Helper
}

// NewGuardService creates the service.
func NewGuardService(registry *biz.GuardRegistry, logger log.Logger) *GuardService {
	return &GuardService{
		registry: registry,
		logger:   log.NewHelper(logger),
	}
}

// HealthReply is the /healthz response body.
type HealthReply struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers"`
}

// GuardsReply is the /api/v1/guards response body.
type GuardsReply struct {
	Breakers map[string]string           `json:"breakers"`
	Limiters map[string]biz.LimiterStats `json:"limiters"`
}

// RegisterRoutes mounts the service's routes on the HTTP server.
// /healthz sits outside the rate-limited /api prefix so health probes are
// never throttled.
func (s *GuardService) RegisterRoutes(srv *http.Server) {
	route := srv.Route("/")
	route.GET("/healthz", s.handleHealth)
	route.GET("/api/v1/guards", s.handleGuards)
}

func (s *GuardService) handleHealth(ctx http.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.Health(c), nil
	})
	reply, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func (s *GuardService) handleGuards(ctx http.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.Guards(c), nil
	})
	reply, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

// Health reports overall status plus each breaker's current state. The
// service itself is "ok" even while breakers are open: an open breaker
// means a downstream is unhealthy, not this process.
func (s *GuardService) Health(_ context.Context) *HealthReply {
	return &HealthReply{
		Status:   "ok",
		Breakers: s.registry.BreakerStates(),
	}
}

// Guards returns the full guard snapshot.
func (s *GuardService) Guards(_ context.Context) *GuardsReply {
	return &GuardsReply{
		Breakers: s.registry.BreakerStates(),
		Limiters: s.registry.LimiterSnapshots(),
	}
}
