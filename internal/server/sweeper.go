package server

import (
	"context"

	"GuardLane/internal/biz"
	pkglog "GuardLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// SweepServer runs the periodic stale-key sweep of the limiter key tables
// as part of the Kratos app lifecycle.
type SweepServer struct {
	registry *biz.GuardRegistry
	logger   *pkglog.LogHelper
	cron     *cron.Cron
}

// NewSweepServer creates the sweep job server.
func NewSweepServer(registry *biz.GuardRegistry, logger log.Logger) *SweepServer {
	return &SweepServer{
		registry: registry,
		logger:   pkglog.NewLogHelper(logger),
		cron:     cron.New(),
	}
}

// Start registers and starts the sweep schedule. A registry without sweep
// configuration turns the server into a no-op.
func (s *SweepServer) Start(ctx context.Context) error {
	spec := s.registry.SweepInterval()
	if spec == "" {
		s.logger.Scheduler("limiter key sweeping disabled")
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		removed := s.registry.SweepStaleKeys(context.Background())
		if removed > 0 {
			s.logger.Scheduler("limiter sweep completed", "removed_keys", removed)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Scheduler("limiter sweep scheduled", "spec", spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SweepServer) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}
