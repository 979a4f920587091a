package models

import (
	"time"

	"github.com/google/uuid"
)

// Per-key rate limit counters for the current minute window and calendar day.
// Counts are in scaled cost units (see tier.UnitScale), not raw requests.
type UsageLedger struct {
	APIKeyID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"api_key_id"`
	UserID            uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	MinuteWindowStart time.Time `json:"minute_window_start"`
	MinuteCount       int64     `gorm:"default:0" json:"minute_count"`
	Day               time.Time `gorm:"type:date" json:"day"`
	DayCount          int64     `gorm:"default:0" json:"day_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (UsageLedger) TableName() string {
	return "usage_ledgers"
}
