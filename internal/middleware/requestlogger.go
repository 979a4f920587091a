package middleware

import (
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Buffered channel for async logging
var logChannel chan models.RequestLog

// Initializes the metered-request logger
func InitRequestLogger(repo *repository.RequestLogRepository, bufferSize int) {
	logChannel = make(chan models.RequestLog, bufferSize)

	// Background worker batch inserts audit rows off the request path
	go func() {
		batch := make([]models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case entry := <-logChannel:
				batch = append(batch, entry)

				if len(batch) >= 100 {
					insertBatch(repo, batch)
					batch = make([]models.RequestLog, 0, 100)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					insertBatch(repo, batch)
					batch = make([]models.RequestLog, 0, 100)
				}
			}
		}
	}()
}

func insertBatch(repo *repository.RequestLogRepository, logs []models.RequestLog) {
	if err := repo.CreateBatch(logs); err != nil {
		// Log error but dont block
		println("Failed to insert request logs:", err.Error())
	}
}

// Logs all metered API requests
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)

		var apiKeyID *uuid.UUID
		if apiKeyInterface, exists := c.Get("api_key"); exists {
			if key, ok := apiKeyInterface.(*models.APIKey); ok {
				id := key.ID
				apiKeyID = &id
			}
		}

		var costUnits int64
		if costInterface, exists := c.Get("cost_units"); exists {
			if units, ok := costInterface.(int64); ok {
				costUnits = units
			}
		}

		logEntry := models.RequestLog{
			Timestamp:      start,
			APIKeyID:       apiKeyID,
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(duration.Milliseconds()),
			CostUnits:      costUnits,
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
		}

		if logChannel == nil {
			return
		}

		select {
		case logChannel <- logEntry:
			// Successfully queued
		default:
			// Channel full, skip logging to avoid blocking
			println("Request log channel full, skipping log entry")
		}
	}
}
