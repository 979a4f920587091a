package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dimicheck/public-api/internal/metrics"
	"github.com/dimicheck/public-api/internal/models"
	"github.com/gin-gonic/gin"
)

// HeaderName carries the API key on every metered request.
const HeaderName = "Dimicheck-API-Key"

// KeyValidator resolves a presented key value; nil means unknown.
type KeyValidator interface {
	Validate(ctx context.Context, key string) (*models.APIKey, error)
}

// RequireAPIKey authenticates the metered surface. Rejections happen
// before the concurrency gate or the ledger is ever touched.
func RequireAPIKey(keys KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader(HeaderName))
		if header == "" {
			metrics.AuthFailuresTotal.Inc()
			jsonError(c, http.StatusUnauthorized, "missing API key")
			return
		}

		apiKey, err := keys.Validate(c.Request.Context(), header)
		if err != nil {
			jsonError(c, http.StatusInternalServerError, "internal server error")
			return
		}
		if apiKey == nil {
			metrics.AuthFailuresTotal.Inc()
			jsonError(c, http.StatusUnauthorized, "invalid API key")
			return
		}
		if !apiKey.IsActive {
			metrics.AuthFailuresTotal.Inc()
			jsonError(c, http.StatusForbidden, "API key inactive")
			return
		}

		c.Set("api_key", apiKey)
		c.Next()
	}
}
