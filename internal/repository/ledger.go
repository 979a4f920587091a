package repository

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/ratelimit"
	"github.com/dimicheck/public-api/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore backs ratelimit.Engine with Postgres. Each RecordAndCheck
// runs inside one database transaction; the charged key's row is taken
// with SELECT ... FOR UPDATE so concurrent requests against the same key
// serialize on the rollover+check+increment.
type LedgerStore struct {
	db *storage.Postgres
}

func NewLedgerStore(db *storage.Postgres) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Transact(ctx context.Context, fn func(ratelimit.Tx) error) error {
	return s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx *gorm.DB
}

// A nonexistent row takes no lock, so two truly concurrent first-ever
// requests against a brand-new key can both read nil and race the insert,
// losing at most one request's charge once per key lifetime. Same accepted
// soft-limit class as the unlocked sibling reads on Engine.RecordAndCheck.
func (t *ledgerTx) LedgerForUpdate(apiKeyID uuid.UUID) (*models.UsageLedger, error) {
	var row models.UsageLedger
	err := t.tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("api_key_id = ?", apiKeyID).
		First(&row).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &row, nil
}

// Sibling rows are read without locks; see Engine.RecordAndCheck.
func (t *ledgerTx) AccountLedgers(userID uuid.UUID) ([]models.UsageLedger, error) {
	var rows []models.UsageLedger
	err := t.tx.
		Where("user_id = ?", userID).
		Find(&rows).Error

	return rows, err
}

func (t *ledgerTx) SaveLedger(row *models.UsageLedger) error {
	return t.tx.Save(row).Error
}

func (t *ledgerTx) AccountKeys(userID uuid.UUID) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := t.tx.
		Where("user_id = ?", userID).
		Find(&keys).Error

	return keys, err
}

func (t *ledgerTx) TouchKey(apiKeyID uuid.UUID, at time.Time) error {
	return t.tx.
		Model(&models.APIKey{}).
		Where("id = ?", apiKeyID).
		Update("last_used_at", at).Error
}

func (t *ledgerTx) SetAccountStreak(userID uuid.UUID, days int, lastDate time.Time) error {
	return t.tx.
		Model(&models.APIKey{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"streak_days":      days,
			"streak_last_date": lastDate,
		}).Error
}
