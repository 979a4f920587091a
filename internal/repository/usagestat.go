package repository

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsageStatRepository struct {
	db *storage.Postgres
}

func NewUsageStatRepository(db *storage.Postgres) *UsageStatRepository {
	return &UsageStatRepository{db: db}
}

// Bump upserts the account's hour bucket and adds to its counters.
func (r *UsageStatRepository) Bump(ctx context.Context, userID uuid.UUID, hourStart time.Time, costUnits, requests int64) error {
	stat := models.HourlyUsageStat{
		UserID:       userID,
		HourStart:    hourStart,
		CostUnits:    costUnits,
		RequestCount: requests,
	}

	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "hour_start"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"cost_units":    gorm.Expr("hourly_usage_stats.cost_units + ?", costUnits),
				"request_count": gorm.Expr("hourly_usage_stats.request_count + ?", requests),
			}),
		}).
		Create(&stat).Error
}

func (r *UsageStatRepository) HourlyStatsSince(ctx context.Context, userID uuid.UUID, from time.Time) ([]models.HourlyUsageStat, error) {
	var rows []models.HourlyUsageStat
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ? AND hour_start >= ?", userID, from).
		Order("hour_start").
		Find(&rows).Error

	return rows, err
}

func (r *UsageStatRepository) TotalRequests(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.HourlyUsageStat{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(request_count), 0)").
		Scan(&total).Error

	return total, err
}
