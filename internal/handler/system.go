package handler

import (
	"net/http"
	"time"

	"github.com/dimicheck/public-api/internal/ratelimit"
	"github.com/dimicheck/public-api/internal/repository"
	"github.com/gin-gonic/gin"
)

// Handles system-related endpoints
type SystemHandler struct {
	gate *ratelimit.Gate
	logs *repository.RequestLogRepository
}

func NewSystemHandler(gate *ratelimit.Gate, logs *repository.RequestLogRepository) *SystemHandler {
	return &SystemHandler{gate: gate, logs: logs}
}

// Returns the admission gate's live occupancy and recent request volume
func (h *SystemHandler) Status(c *gin.Context) {
	now := time.Now()
	requests24h, err := h.logs.CountByTimeRange(c.Request.Context(), now.Add(-24*time.Hour), now)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gate": gin.H{
			"capacity":  h.gate.Capacity(),
			"in_flight": h.gate.InFlight(),
			"waiting":   h.gate.Waiting(),
		},
		"requests_24h": requests24h,
		"timestamp":    now.Unix(),
	})
}
