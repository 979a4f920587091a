package repository

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/storage"
	"gorm.io/gorm"
)

type ClassRepository struct {
	db *storage.Postgres
}

func NewClassRepository(db *storage.Postgres) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) FindConfig(ctx context.Context, grade, section int) (*models.ClassConfig, error) {
	var cfg models.ClassConfig
	err := r.db.DB.WithContext(ctx).
		Where("grade = ? AND section = ?", grade, section).
		First(&cfg).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &cfg, err
}

func (r *ClassRepository) ListConfigs(ctx context.Context) ([]models.ClassConfig, error) {
	var configs []models.ClassConfig
	err := r.db.DB.WithContext(ctx).
		Order("grade, section").
		Find(&configs).Error

	return configs, err
}

func (r *ClassRepository) FindState(ctx context.Context, grade, section int) (*models.ClassState, error) {
	var state models.ClassState
	err := r.db.DB.WithContext(ctx).
		Where("grade = ? AND section = ?", grade, section).
		First(&state).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &state, err
}

// Events for a class, optionally bounded to one date range, capped at 500.
func (r *ClassRepository) EventsFor(ctx context.Context, grade, section int, from, to *time.Time) ([]models.CalendarEvent, error) {
	query := r.db.DB.WithContext(ctx).
		Where("grade = ? AND section = ?", grade, section)

	if from != nil && to != nil {
		query = query.Where("event_date BETWEEN ? AND ?", *from, *to)
	}

	var events []models.CalendarEvent
	err := query.Order("event_date").Limit(500).Find(&events).Error

	return events, err
}
