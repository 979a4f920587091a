package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type APIKey struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	KeyHash         string     `gorm:"uniqueIndex;not null" json:"-"`
	Label           string     `gorm:"not null" json:"label"`
	UserID          uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Tier            string     `gorm:"default:'tier1'" json:"tier"`
	IsActive        bool       `gorm:"default:true" json:"is_active"`
	StreakDays      int        `gorm:"default:0" json:"streak_days"`
	StreakLastDate  *time.Time `gorm:"type:date" json:"streak_last_date,omitempty"`
	TierRequestedAt *time.Time `json:"tier_requested_at,omitempty"`
	TierUpgradedAt  *time.Time `json:"tier_upgraded_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
}

func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (APIKey) TableName() string {
	return "api_keys"
}
