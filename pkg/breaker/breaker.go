// Package breaker implements an in-process circuit breaker for calls to a
// downstream dependency.
//
// Each breaker guards one logical dependency and cycles between three
// states: CLOSED (calls pass through, consecutive classified failures are
// counted), OPEN (calls fail fast until the recovery timeout elapses) and
// HALF_OPEN (the first call after the cooldown probes the dependency; one
// success closes the breaker, one failure re-opens it).
//
// The breaker never retries, never times out the wrapped operation, and
// never mutates the operation's own success or failure. State lives only in
// this process: nothing is shared across processes or persisted.
package breaker

import (
	"context"
	"sync"
	"time"

	"GuardLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
)

// State is the breaker's position in its lifecycle.
type State int32

const (
	// StateClosed allows all calls; failures are counted.
	StateClosed State = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows trial calls probing for recovery.
	StateHalfOpen
)

// String returns the state name as exposed on health endpoints.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Operation is the call being guarded. The breaker invokes it at most once
// per Execute and imposes no timeout of its own; callers that need one must
// build it into the operation via ctx.
type Operation func(ctx context.Context) (interface{}, error)

// Classifier reports whether a failure counts toward the trip threshold.
// Failures it rejects pass through with zero breaker involvement.
type Classifier func(err error) bool

// StateChangeHook observes transitions, e.g. to update metrics.
type StateChangeHook func(name string, from, to State)

const (
	// DefaultFailureThreshold is the consecutive classified failures
	// required to trip the breaker.
	DefaultFailureThreshold = 3
	// DefaultRecoveryTimeout is the cooldown before a trial call.
	DefaultRecoveryTimeout = 30 * time.Second
)

// CircuitBreaker guards calls to a single downstream dependency.
// All methods are safe for concurrent use; the check-then-act admission
// sequence and the post-call bookkeeping are each serialized by a mutex
// scoped to this instance. The mutex is NOT held while the operation runs.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	classify         Classifier
	now              clock.NowFn
	onStateChange    StateChangeHook
	logger           *log.Helper

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time // zero value means unset
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithFailureThreshold sets the consecutive failures required to open.
func WithFailureThreshold(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.failureThreshold = n
		}
	}
}

// WithRecoveryTimeout sets the cooldown before a HALF_OPEN trial.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.recoveryTimeout = d
		}
	}
}

// WithClassifier sets the predicate deciding which failures count toward
// the threshold. The default counts every failure.
func WithClassifier(c Classifier) Option {
	return func(cb *CircuitBreaker) {
		if c != nil {
			cb.classify = c
		}
	}
}

// WithClock replaces the time source, used by tests.
func WithClock(now clock.NowFn) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithLogger sets the logger used for transition logs.
func WithLogger(logger log.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = log.NewHelper(logger)
	}
}

// WithStateChangeHook registers a transition observer.
func WithStateChangeHook(hook StateChangeHook) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = hook
	}
}

// New creates a breaker for the named dependency. The name appears in
// rejection errors and transition logs.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: DefaultFailureThreshold,
		recoveryTimeout:  DefaultRecoveryTimeout,
		classify:         func(error) bool { return true },
		now:              clock.RealNow,
		logger:           log.NewHelper(log.GetLogger()),
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the dependency name the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state for health-endpoint exposure.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs op under breaker control.
//
// While OPEN and inside the cooldown it fails fast with a
// *ServiceUnavailableError and never invokes op. Once the cooldown has
// elapsed the same call transitions to HALF_OPEN and probes the dependency
// directly, with no extra round trip. In CLOSED and HALF_OPEN the
// operation's own outcome is returned unchanged after bookkeeping; a
// failure the classifier does not recognize passes through with no state
// change at all.
//
// Multiple goroutines may be admitted into HALF_OPEN at once; the breaker
// deliberately does not serialize trial calls.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	admittedHalfOpen, err := cb.admit()
	if err != nil {
		return nil, err
	}

	result, opErr := op(ctx)

	cb.record(opErr, admittedHalfOpen)
	return result, opErr
}

// admit performs the pre-call state check. It returns whether the call was
// admitted as a HALF_OPEN trial, or the fail-fast rejection error.
func (cb *CircuitBreaker) admit() (halfOpen bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		remaining := cb.recoveryTimeout - cb.now().Sub(cb.lastFailure)
		if remaining > 0 {
			return false, &ServiceUnavailableError{
				Dependency: cb.name,
				RetryAfter: remaining,
			}
		}
		cb.transition(StateHalfOpen)
	}
	return cb.state == StateHalfOpen, nil
}

// record applies post-call bookkeeping for the operation outcome.
func (cb *CircuitBreaker) record(opErr error, admittedHalfOpen bool) {
	if opErr != nil && !cb.classify(opErr) {
		// Unclassified failure: pass through untouched.
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if opErr == nil {
		cb.failures = 0
		cb.lastFailure = time.Time{}
		if cb.state != StateClosed {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()

	switch {
	case admittedHalfOpen:
		// A single trial failure re-opens, no re-accumulation needed.
		if cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	case cb.failures >= cb.failureThreshold:
		if cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	}
}

// transition switches state. Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.logger.Infow(
		"msg", "circuit breaker state changed",
		"dependency", cb.name,
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", cb.failures,
	)
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}
