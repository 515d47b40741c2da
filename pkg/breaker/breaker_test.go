package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"GuardLane/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

// failingOp returns an operation that always fails with errDownstream.
func failingOp() Operation {
	return func(context.Context) (interface{}, error) {
		return nil, errDownstream
	}
}

func newTestBreaker(fake *clock.Fake, opts ...Option) *CircuitBreaker {
	base := []Option{
		WithFailureThreshold(3),
		WithRecoveryTimeout(30 * time.Second),
		WithClock(fake.Now),
	}
	return New("users_service", append(base, opts...)...)
}

// Test Execute - success passes the operation result through unchanged
func TestExecute_SuccessPassThrough(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)

	result, err := cb.Execute(context.Background(), func(context.Context) (interface{}, error) {
		return "payload", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", result)
	assert.Equal(t, StateClosed, cb.State())
}

// Test Execute - breaker opens exactly when failures reach the threshold
func TestExecute_OpensAtThresholdExactly(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)
	ctx := context.Background()

	// Two failures: still CLOSED, never earlier.
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, failingOp())
		assert.ErrorIs(t, err, errDownstream)
		assert.Equal(t, StateClosed, cb.State(), "failure %d must not open", i+1)
	}

	// Third failure trips it, never later.
	_, err := cb.Execute(ctx, failingOp())
	assert.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, cb.State())
}

// Test Execute - a success between failures resets the consecutive count
func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingOp())
	_, _ = cb.Execute(ctx, failingOp())

	_, err := cb.Execute(ctx, func(context.Context) (interface{}, error) { return nil, nil })
	require.NoError(t, err)

	// Two more failures reach only 2 consecutive, breaker stays CLOSED.
	_, _ = cb.Execute(ctx, failingOp())
	_, _ = cb.Execute(ctx, failingOp())
	assert.Equal(t, StateClosed, cb.State())
}

// Test Execute - while OPEN the operation is never invoked and the
// rejection carries the dependency name and remaining cooldown
func TestExecute_OpenRejectsWithoutInvoking(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(ctx, failingOp())
	}
	require.Equal(t, StateOpen, cb.State())

	fake.Advance(10 * time.Second)

	invoked := false
	_, err := cb.Execute(ctx, func(context.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	})

	assert.False(t, invoked)
	sue, ok := IsServiceUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, "users_service", sue.Dependency)
	assert.Equal(t, 20*time.Second, sue.RetryAfter)
	assert.Equal(t, int64(20), sue.RetryAfterSeconds())
	assert.Contains(t, err.Error(), "circuit 'users_service' is OPEN")
}

// Test Execute - the first call at exactly the cooldown boundary probes in
// HALF_OPEN within the same call
func TestExecute_CooldownBoundaryAdmitsTrial(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(ctx, failingOp())
	}

	fake.Advance(30 * time.Second) // exactly recovery_timeout

	invoked := false
	_, err := cb.Execute(ctx, func(context.Context) (interface{}, error) {
		invoked = true
		return "ok", nil
	})

	require.NoError(t, err)
	assert.True(t, invoked)
	assert.Equal(t, StateClosed, cb.State())
}

// Test Execute - a single HALF_OPEN failure re-opens the breaker without
// re-accumulating the full threshold
func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(ctx, failingOp())
	}
	fake.Advance(31 * time.Second)

	_, err := cb.Execute(ctx, failingOp())
	assert.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, cb.State())

	// Still rejecting: the single failure restarted the cooldown.
	fake.Advance(10 * time.Second)
	_, err = cb.Execute(ctx, failingOp())
	_, ok := IsServiceUnavailable(err)
	assert.True(t, ok)
}

// Test Execute - unclassified failures pass through with zero state change
func TestExecute_UnclassifiedFailureUntouched(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	errIgnored := errors.New("validation error")
	cb := newTestBreaker(fake, WithClassifier(func(err error) bool {
		return !errors.Is(err, errIgnored)
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(ctx, func(context.Context) (interface{}, error) {
			return nil, errIgnored
		})
		assert.ErrorIs(t, err, errIgnored)
	}
	assert.Equal(t, StateClosed, cb.State())

	// Classified failures still count from zero.
	_, _ = cb.Execute(ctx, failingOp())
	_, _ = cb.Execute(ctx, failingOp())
	assert.Equal(t, StateClosed, cb.State())
	_, _ = cb.Execute(ctx, failingOp())
	assert.Equal(t, StateOpen, cb.State())
}

// Test Execute - full trip, cooldown, probe and recovery cycle
func TestExecute_TripCooldownRecoverCycle(t *testing.T) {
	start := time.Unix(1000, 0)
	fake := clock.NewFake(start)
	cb := New("users_service",
		WithFailureThreshold(3),
		WithRecoveryTimeout(20*time.Second),
		WithClock(fake.Now),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, failingOp())
		assert.ErrorIs(t, err, errDownstream)
	}
	require.Equal(t, StateOpen, cb.State())

	// t+10s: rejected with retry_after ~= 10s.
	fake.Advance(10 * time.Second)
	_, err := cb.Execute(ctx, failingOp())
	sue, ok := IsServiceUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, sue.RetryAfter)

	// t+21s: executes as a HALF_OPEN trial; success closes the breaker.
	fake.Advance(11 * time.Second)
	result, err := cb.Execute(ctx, func(context.Context) (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, cb.State())

	// Failure count was reset: two failures do not re-open.
	_, _ = cb.Execute(ctx, failingOp())
	_, _ = cb.Execute(ctx, failingOp())
	assert.Equal(t, StateClosed, cb.State())
}

// Test Execute - HALF_OPEN does not limit concurrent trial calls; many
// callers may probe the dependency at once. Documented behavior, not a bug.
func TestExecute_HalfOpenConcurrentProbes(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(ctx, failingOp())
	}
	fake.Advance(31 * time.Second)

	const callers = 8
	var (
		mu      sync.Mutex
		invoked int
		start   = make(chan struct{})
		wg      sync.WaitGroup
	)
	release := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = cb.Execute(ctx, func(context.Context) (interface{}, error) {
				mu.Lock()
				invoked++
				mu.Unlock()
				<-release
				return nil, nil
			})
		}()
	}

	close(start)
	// Wait until every goroutine is inside the operation.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return invoked == callers
	}, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, callers, invoked)
	assert.Equal(t, StateClosed, cb.State())
}

// Test Execute - concurrent failures never over-trip or corrupt the count
func TestExecute_ConcurrentFailures(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cb := newTestBreaker(fake, WithFailureThreshold(50))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 49; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cb.Execute(ctx, failingOp())
		}()
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.State())
	_, _ = cb.Execute(ctx, failingOp())
	assert.Equal(t, StateOpen, cb.State())
}

// Test State - string form matches the health-endpoint vocabulary
func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

// Test New - defaults match the documented configuration
func TestNew_Defaults(t *testing.T) {
	cb := New("reviews_service")
	assert.Equal(t, "reviews_service", cb.Name())
	assert.Equal(t, DefaultFailureThreshold, cb.failureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, cb.recoveryTimeout)
	assert.Equal(t, StateClosed, cb.State())
}

// Test hook - transitions are observable for metrics
func TestStateChangeHook(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	var transitions []string
	cb := newTestBreaker(fake, WithStateChangeHook(func(name string, from, to State) {
		transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(ctx, failingOp())
	}
	fake.Advance(31 * time.Second)
	_, _ = cb.Execute(ctx, func(context.Context) (interface{}, error) { return nil, nil })

	assert.Equal(t, []string{
		"users_service:CLOSED->OPEN",
		"users_service:OPEN->HALF_OPEN",
		"users_service:HALF_OPEN->CLOSED",
	}, transitions)
}
