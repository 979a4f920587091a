package repository

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/storage"
	"github.com/google/uuid"
)

type RequestLogRepository struct {
	db *storage.Postgres
}

func NewRequestLogRepository(db *storage.Postgres) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

func (r *RequestLogRepository) CreateBatch(logs []models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.DB.Create(&logs).Error
}

func (r *RequestLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

func (r *RequestLogRepository) FindByAPIKey(ctx context.Context, apiKeyID uuid.UUID, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	var logs []models.RequestLog
	err := r.db.DB.WithContext(ctx).
		Where("api_key_id = ? AND timestamp BETWEEN ? AND ?", apiKeyID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}
