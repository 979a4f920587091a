package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/repository"
	"github.com/gin-gonic/gin"
)

// A board untouched for this long reads as stale.
const staleAfter = 5 * time.Minute

// PublicHandler serves the metered public surface: version, class presence
// status and calendar events.
type PublicHandler struct {
	classes *repository.ClassRepository
	version string
}

func NewPublicHandler(classes *repository.ClassRepository, version string) *PublicHandler {
	return &PublicHandler{classes: classes, version: version}
}

// Handles GET /public/api/version
func (h *PublicHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.version})
}

// Handles GET /public/api/class/:class/status (":class" is "<grade>-<section>")
func (h *PublicHandler) ClassStatus(c *gin.Context) {
	grade, section, ok := parseClassParam(c.Param("class"))
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid class identifier")
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.classes.FindConfig(ctx, grade, section)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if cfg == nil {
		jsonError(c, http.StatusNotFound, "class not found")
		return
	}

	status, err := h.resolveStatus(c, grade, section)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"grade":  grade,
		"class":  section,
		"status": status,
	})
}

// Handles GET /public/api/status/overview
func (h *PublicHandler) StatusOverview(c *gin.Context) {
	ctx := c.Request.Context()
	configs, err := h.classes.ListConfigs(ctx)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(configs) == 0 {
		jsonError(c, http.StatusNotFound, "no classes configured")
		return
	}

	overview := make(map[string]gin.H, len(configs))
	for _, cfg := range configs {
		status, err := h.resolveStatus(c, cfg.Grade, cfg.Section)
		if err != nil {
			jsonError(c, http.StatusInternalServerError, "internal server error")
			return
		}
		overview[fmt.Sprintf("%d-%d", cfg.Grade, cfg.Section)] = gin.H{"status": status}
	}

	c.JSON(http.StatusOK, overview)
}

// Handles GET /public/api/class/:class/calendar/events
func (h *PublicHandler) CalendarEvents(c *gin.Context) {
	grade, section, ok := parseClassParam(c.Param("class"))
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid class identifier")
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.classes.FindConfig(ctx, grade, section)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if cfg == nil {
		jsonError(c, http.StatusNotFound, "class not found")
		return
	}

	var from, to *time.Time
	monthStr := c.Query("month")
	yearStr := c.Query("year")
	if monthStr != "" && yearStr != "" {
		month, err := strconv.Atoi(monthStr)
		if err != nil || month < 1 || month > 12 {
			jsonError(c, http.StatusBadRequest, "invalid month")
			return
		}
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid date range")
			return
		}

		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		from, to = &start, &end
	}

	events, err := h.classes.EventsFor(ctx, grade, section, from, to)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	payload := make([]gin.H, 0, len(events))
	for _, event := range events {
		payload = append(payload, serializeEvent(event))
	}

	c.JSON(http.StatusOK, gin.H{"events": payload})
}

func (h *PublicHandler) resolveStatus(c *gin.Context, grade, section int) (string, error) {
	state, err := h.classes.FindState(c.Request.Context(), grade, section)
	if err != nil {
		return "", err
	}
	if state == nil || state.UpdatedAt.IsZero() {
		return "unknown", nil
	}

	if time.Since(state.UpdatedAt) > staleAfter {
		return "stale", nil
	}
	return "active", nil
}

func serializeEvent(event models.CalendarEvent) gin.H {
	payload := gin.H{
		"id":          event.ID,
		"title":       event.Title,
		"description": event.Description,
		"date":        event.EventDate.Format("2006-01-02"),
		"createdBy":   event.CreatedBy,
		"createdAt":   event.CreatedAt.Format(time.RFC3339),
		"updatedAt":   nil,
	}
	if event.UpdatedAt != nil {
		payload["updatedAt"] = event.UpdatedAt.Format(time.RFC3339)
	}
	return payload
}

func parseClassParam(param string) (int, int, bool) {
	parts := strings.SplitN(param, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	grade, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	section, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}

	return grade, section, true
}
