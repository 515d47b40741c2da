package biz

import (
	"context"
	"fmt"

	"GuardLane/internal/conf"
	"GuardLane/internal/metrics"
	"GuardLane/pkg/breaker"
	"GuardLane/pkg/ratelimit"

	"github.com/go-kratos/kratos/v2/log"
)

// GuardRegistry owns every guard instance for the process lifetime.
// Breakers and limiters are constructed here, once, from configuration and
// handed to call sites by name; nothing in the service reaches for a
// package-level singleton.
type GuardRegistry struct {
	logger   *log.Helper
	breakers map[string]*breaker.CircuitBreaker
	limiters map[string]*ratelimit.Limiter
	sweep    *conf.Sweep
}

// LimiterStats is a limiter snapshot for diagnostics endpoints.
type LimiterStats struct {
	Keys   int     `json:"keys"`
	Calls  int     `json:"calls"`
	Period float64 `json:"period_seconds"`
}

// NewGuardRegistry builds all configured guards.
func NewGuardRegistry(cfg *conf.Guards, logger log.Logger) (*GuardRegistry, error) {
	r := &GuardRegistry{
		logger:   log.NewHelper(logger),
		breakers: make(map[string]*breaker.CircuitBreaker),
		limiters: make(map[string]*ratelimit.Limiter),
		sweep:    cfg.Sweep,
	}

	for _, bc := range cfg.Breakers {
		if _, exists := r.breakers[bc.Name]; exists {
			return nil, fmt.Errorf("duplicate breaker name %q", bc.Name)
		}
		r.breakers[bc.Name] = breaker.New(bc.Name,
			breaker.WithFailureThreshold(bc.FailureThreshold),
			breaker.WithRecoveryTimeout(bc.RecoveryTimeout),
			breaker.WithLogger(logger),
			breaker.WithStateChangeHook(metrics.ObserveBreakerTransition),
		)
		r.logger.Infow(
			"msg", "circuit breaker registered",
			"dependency", bc.Name,
			"failure_threshold", bc.FailureThreshold,
			"recovery_timeout", bc.RecoveryTimeout.String(),
		)
	}

	for _, lc := range cfg.Limiters {
		if _, exists := r.limiters[lc.Name]; exists {
			return nil, fmt.Errorf("duplicate limiter name %q", lc.Name)
		}
		opts := []ratelimit.Option{}
		if cfg.MaxKeys > 0 {
			opts = append(opts, ratelimit.WithMaxKeys(cfg.MaxKeys))
		}
		l, err := ratelimit.New(lc.Calls, lc.Period, opts...)
		if err != nil {
			return nil, fmt.Errorf("limiter %q: %w", lc.Name, err)
		}
		r.limiters[lc.Name] = l
		r.logger.Infow(
			"msg", "rate limiter registered",
			"limiter", lc.Name,
			"calls", lc.Calls,
			"period", lc.Period.String(),
		)
	}

	return r, nil
}

// Breaker returns the breaker guarding the named dependency.
func (r *GuardRegistry) Breaker(name string) (*breaker.CircuitBreaker, bool) {
	cb, ok := r.breakers[name]
	return cb, ok
}

// Limiter returns the named limiter.
func (r *GuardRegistry) Limiter(name string) (*ratelimit.Limiter, bool) {
	l, ok := r.limiters[name]
	return l, ok
}

// Execute runs op through the breaker guarding dependency. The operation's
// own outcome is returned unchanged; while the breaker is open the call
// fails fast with a *breaker.ServiceUnavailableError.
func (r *GuardRegistry) Execute(ctx context.Context, dependency string, op breaker.Operation) (interface{}, error) {
	cb, ok := r.breakers[dependency]
	if !ok {
		return nil, fmt.Errorf("no circuit breaker registered for dependency %q", dependency)
	}
	return cb.Execute(ctx, op)
}

// BreakerStates returns every breaker's current state keyed by dependency,
// for health-endpoint exposure.
func (r *GuardRegistry) BreakerStates() map[string]string {
	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State().String()
	}
	return states
}

// LimiterSnapshots returns per-limiter occupancy and configuration.
func (r *GuardRegistry) LimiterSnapshots() map[string]LimiterStats {
	stats := make(map[string]LimiterStats, len(r.limiters))
	for name, l := range r.limiters {
		stats[name] = LimiterStats{
			Keys:   l.Len(),
			Calls:  l.Calls(),
			Period: l.Period().Seconds(),
		}
	}
	return stats
}

// SweepStaleKeys removes limiter keys idle past the configured horizon and
// refreshes the key gauges. Called periodically by the cron job.
func (r *GuardRegistry) SweepStaleKeys(ctx context.Context) int {
	if r.sweep == nil || r.sweep.MaxIdle <= 0 {
		return 0
	}

	total := 0
	for name, l := range r.limiters {
		select {
		case <-ctx.Done():
			return total
		default:
		}
		removed := l.Sweep(r.sweep.MaxIdle)
		total += removed
		metrics.RateLimitKeys.WithLabelValues(name).Set(float64(l.Len()))
		if removed > 0 {
			r.logger.Debugw(
				"msg", "stale limiter keys swept",
				"limiter", name,
				"removed", removed,
				"remaining", l.Len(),
			)
		}
	}
	return total
}

// SweepInterval returns how often the sweep job should run, zero when
// sweeping is disabled.
func (r *GuardRegistry) SweepInterval() string {
	if r.sweep == nil || r.sweep.Interval <= 0 {
		return ""
	}
	return fmt.Sprintf("@every %s", r.sweep.Interval)
}
