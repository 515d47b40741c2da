package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"GuardLane/internal/biz"
	"GuardLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*GuardService, *biz.GuardRegistry) {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)
	registry, err := biz.NewGuardRegistry(&conf.Guards{
		Breakers: []*conf.Breaker{
			{Name: "users_service", FailureThreshold: 2, RecoveryTimeout: 30 * time.Second},
			{Name: "reviews_service", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second},
		},
		Limiters: []*conf.Limiter{
			{Name: "api", Calls: 10, Period: time.Minute},
		},
		MaxKeys: 64,
	}, logger)
	require.NoError(t, err)
	return NewGuardService(registry, logger), registry
}

func TestHealth_ReportsBreakerStates(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	reply := svc.Health(ctx)
	assert.Equal(t, "ok", reply.Status)
	assert.Equal(t, "CLOSED", reply.Breakers["users_service"])
	assert.Equal(t, "CLOSED", reply.Breakers["reviews_service"])

	// Trip one breaker; the service stays ok, the state is visible.
	errDown := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		_, _ = registry.Execute(ctx, "users_service", func(context.Context) (interface{}, error) {
			return nil, errDown
		})
	}

	reply = svc.Health(ctx)
	assert.Equal(t, "ok", reply.Status)
	assert.Equal(t, "OPEN", reply.Breakers["users_service"])
	assert.Equal(t, "CLOSED", reply.Breakers["reviews_service"])
}

func TestGuards_ReportsLimiterOccupancy(t *testing.T) {
	svc, registry := newTestService(t)

	l, ok := registry.Limiter("api")
	require.True(t, ok)
	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	l.Allow("10.0.0.2")

	reply := svc.Guards(context.Background())
	require.Contains(t, reply.Limiters, "api")
	assert.Equal(t, 2, reply.Limiters["api"].Keys)
	assert.Equal(t, 10, reply.Limiters["api"].Calls)
	assert.Equal(t, 60.0, reply.Limiters["api"].Period)
	assert.Len(t, reply.Breakers, 2)
}
