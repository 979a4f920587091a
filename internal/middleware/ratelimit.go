package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dimicheck/public-api/internal/metrics"
	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/ratelimit"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UsageRecorder accumulates per-account hourly stats after a successful
// metered request.
type UsageRecorder interface {
	Bump(ctx context.Context, userID uuid.UUID, hourStart time.Time, costUnits, requests int64) error
}

// RateLimit charges the declared endpoint cost against the account's
// quota before the handler runs, and bumps the hourly usage stat after it
// completes. Must sit behind RequireAPIKey and Concurrency.
func RateLimit(engine *ratelimit.Engine, recorder UsageRecorder, cost float64) gin.HandlerFunc {
	units := tier.ScaleCost(cost)

	return func(c *gin.Context) {
		apiKeyInterface, exists := c.Get("api_key")
		if !exists || apiKeyInterface == nil {
			jsonError(c, http.StatusInternalServerError, "API key missing from request context")
			return
		}
		apiKey := apiKeyInterface.(*models.APIKey)

		start := time.Now()
		decision, err := engine.RecordAndCheck(c.Request.Context(), apiKey, units)
		metrics.CheckLatency.Observe(time.Since(start).Seconds())

		if errors.Is(err, ratelimit.ErrQuotaExceeded) {
			metrics.BlockedTotal.WithLabelValues(decision.Tier.Name).Inc()
			setRateLimitHeaders(c, decision)

			retryAfter := int(time.Until(decision.WindowReset).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))

			jsonError(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if err != nil {
			metrics.ErrorsTotal.Inc()
			jsonError(c, http.StatusInternalServerError, "rate limit check failed")
			return
		}

		metrics.ChecksTotal.WithLabelValues(decision.Tier.Name).Inc()
		metrics.AllowedTotal.WithLabelValues(decision.Tier.Name).Inc()
		setRateLimitHeaders(c, decision)
		c.Set("cost_units", units)

		c.Next()

		if c.IsAborted() {
			return
		}

		hourStart := engine.Now().Truncate(time.Hour)
		if err := recorder.Bump(c.Request.Context(), apiKey.UserID, hourStart, units, 1); err != nil {
			log.Printf("Failed to record hourly usage: %v", err)
		}
	}
}

func setRateLimitHeaders(c *gin.Context, d *ratelimit.Decision) {
	remaining := d.MinuteCap - d.MinuteUsed
	if remaining < 0 {
		remaining = 0
	}

	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", d.MinuteCap))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", d.WindowReset.Unix()))
	c.Header("X-RateLimit-Tier", d.Tier.Name)
}
