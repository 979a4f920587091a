package models

import (
	"time"

	"github.com/google/uuid"
)

// Accumulated usage per account and hour bucket. Feeds tier eligibility,
// never the rate-limit hot path.
type HourlyUsageStat struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;index:idx_stat_bucket,unique;not null" json:"user_id"`
	HourStart    time.Time `gorm:"index:idx_stat_bucket,unique;not null" json:"hour_start"`
	CostUnits    int64     `gorm:"default:0" json:"cost_units"`
	RequestCount int64     `gorm:"default:0" json:"request_count"`
}

func (HourlyUsageStat) TableName() string {
	return "hourly_usage_stats"
}
