package repository

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type APIKeyRepository struct {
	db *storage.Postgres
}

func NewAPIKeyRepository(db *storage.Postgres) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	return r.db.DB.WithContext(ctx).Create(apiKey).Error
}

// Inactive keys are returned too; the caller decides between 401 and 403.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := r.db.DB.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&apiKey).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &apiKey, err
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&apiKey).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &apiKey, err
}

func (r *APIKeyRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error

	return keys, err
}

func (r *APIKeyRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("user_id = ?", userID).
		Count(&count).Error

	return count, err
}

func (r *APIKeyRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Promotes every key owned by the user in one statement; tier upgrades are
// account-wide.
func (r *APIKeyRepository) UpgradeTierForUser(ctx context.Context, userID uuid.UUID, tierName string, at time.Time) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"tier":              tierName,
			"tier_requested_at": at,
			"tier_upgraded_at":  at,
		}).Error
}

// Hard delete; the ledger row goes with it.
func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("api_key_id = ?", id).Delete(&models.UsageLedger{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.APIKey{}).Error
	})
}

func (r *APIKeyRepository) LedgersByUser(ctx context.Context, userID uuid.UUID) ([]models.UsageLedger, error) {
	var rows []models.UsageLedger
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error

	return rows, err
}
