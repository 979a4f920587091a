package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dimicheck/public-api/internal/repository"
	"github.com/dimicheck/public-api/internal/service"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeveloperHandler owns the key-management dashboard: key CRUD, usage
// snapshots and tier upgrades. Sits behind RequireAuth.
type DeveloperHandler struct {
	keys      *service.APIKeyService
	usage     *service.UsageService
	logs      *repository.RequestLogRepository
	evaluator *tier.EligibilityEvaluator
}

func NewDeveloperHandler(keys *service.APIKeyService, usage *service.UsageService, logs *repository.RequestLogRepository, evaluator *tier.EligibilityEvaluator) *DeveloperHandler {
	return &DeveloperHandler{keys: keys, usage: usage, logs: logs, evaluator: evaluator}
}

// Handles GET /api/dev/api-keys
func (h *DeveloperHandler) List(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	summary, err := h.usage.Summary(c.Request.Context(), userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": summary.Keys})
}

// Handles POST /api/dev/api-keys
func (h *DeveloperHandler) Create(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req struct {
		Label string `json:"label"`
	}
	// Body is optional; an empty label gets a default.
	c.ShouldBindJSON(&req)

	key, apiKey, err := h.keys.Create(c.Request.Context(), userID, req.Label)
	if err != nil {
		if errors.Is(err, service.ErrKeyLimitReached) {
			jsonError(c, http.StatusBadRequest, "API key limit reached")
			return
		}
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      apiKey.ID,
		"label":   apiKey.Label,
		"tier":    apiKey.Tier,
		"key":     key,
		"message": "Save this key - it won't be shown again",
	})
}

// Handles PATCH /api/dev/api-keys/:id
func (h *DeveloperHandler) Update(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid API key ID")
		return
	}

	var req struct {
		Label    *string `json:"label"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, err.Error())
		return
	}

	updates := make(map[string]interface{})
	if req.Label != nil && *req.Label != "" {
		updates["label"] = *req.Label
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		jsonError(c, http.StatusBadRequest, "no changes supplied")
		return
	}

	apiKey, err := h.keys.Update(c.Request.Context(), userID, keyID, updates)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			jsonError(c, http.StatusNotFound, "API key not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": apiKey})
}

// Handles DELETE /api/dev/api-keys/:id
func (h *DeveloperHandler) Delete(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid API key ID")
		return
	}

	if err := h.keys.Delete(c.Request.Context(), userID, keyID); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			jsonError(c, http.StatusNotFound, "API key not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": keyID})
}

// Handles POST /api/dev/api-keys/:id/tier-upgrade
func (h *DeveloperHandler) TierUpgrade(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid API key ID")
		return
	}

	apiKey, err := h.keys.UpgradeTier(c.Request.Context(), userID, keyID, h.evaluator)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrKeyNotFound):
			jsonError(c, http.StatusNotFound, "API key not found")
		case errors.Is(err, service.ErrNotDefaultTier):
			jsonError(c, http.StatusBadRequest, "only default-tier keys can be upgraded")
		case errors.Is(err, service.ErrNotEligible):
			jsonError(c, http.StatusBadRequest, "upgrade requirements not met")
		case errors.Is(err, service.ErrNoUpgradePath):
			jsonError(c, http.StatusBadRequest, "no higher tier configured")
		default:
			jsonError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": apiKey})
}

// Handles GET /api/dev/api-keys/:id/logs
func (h *DeveloperHandler) KeyLogs(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid API key ID")
		return
	}

	// Ownership check before touching the audit trail.
	if _, err := h.keys.Get(c.Request.Context(), userID, keyID); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			jsonError(c, http.StatusNotFound, "API key not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	to := time.Now()
	from := to.AddDate(0, 0, -7)

	logs, err := h.logs.FindByAPIKey(c.Request.Context(), keyID, from, to, limit, offset)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "from": from, "to": to})
}

// Handles GET /api/dev/usage
func (h *DeveloperHandler) Usage(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	summary, err := h.usage.Summary(c.Request.Context(), userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Handles GET /api/dev/eligibility
func (h *DeveloperHandler) Eligibility(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	progress, err := h.evaluator.Evaluate(c.Request.Context(), userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, progress)
}
