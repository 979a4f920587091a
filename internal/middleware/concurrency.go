package middleware

import (
	"net/http"

	"github.com/dimicheck/public-api/internal/metrics"
	"github.com/dimicheck/public-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Concurrency bounds in-flight metered work. Admission happens strictly
// before any quota accounting, so busy rejections are never charged. The
// slot is released on every exit path, panics included.
func Concurrency(gate *ratelimit.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !gate.Acquire(c.Request.Context()) {
			metrics.BusyTotal.Inc()
			jsonError(c, http.StatusServiceUnavailable, "server busy, try again soon")
			return
		}
		defer gate.Release()

		c.Next()
	}
}
