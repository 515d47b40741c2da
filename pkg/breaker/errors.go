package breaker

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ServiceUnavailableError is the fail-fast rejection returned while the
// breaker is OPEN and inside its cooldown. The guarded operation was never
// invoked; it carries the dependency name and the remaining cooldown so the
// caller can surface unavailability or fail over.
type ServiceUnavailableError struct {
	Dependency string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("circuit '%s' is OPEN; retry after %ds",
		e.Dependency, e.RetryAfterSeconds())
}

// RetryAfterSeconds returns the remaining cooldown rounded up to whole
// seconds, floored at zero, for Retry-After style headers.
func (e *ServiceUnavailableError) RetryAfterSeconds() int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int64(math.Ceil(e.RetryAfter.Seconds()))
}

// IsServiceUnavailable reports whether err is a breaker-open rejection and
// returns it when so.
func IsServiceUnavailable(err error) (*ServiceUnavailableError, bool) {
	var sue *ServiceUnavailableError
	if errors.As(err, &sue) {
		return sue, true
	}
	return nil, false
}
