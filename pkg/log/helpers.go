package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with convenience methods for the
// guard domain. Each method tags the entry with a "type" field so log
// pipelines can filter by concern.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates the extended helper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{Helper: log.NewHelper(logger)}
}

func (h *LogHelper) typed(kind, msg string, kvs []interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", kind)
	h.Infow(allKvs...)
}

// RateLimit logs rate limiter admission decisions.
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.typed("ratelimit", msg, kvs)
}

// Breaker logs circuit breaker activity.
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.typed("breaker", msg, kvs)
}

// Startup logs service boot milestones.
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.typed("startup", msg, kvs)
}

// Scheduler logs cron job activity.
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.typed("scheduler", msg, kvs)
}

// Request logs one handled HTTP request.
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}
