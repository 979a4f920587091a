package models

import "time"

type ClassConfig struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Grade       int    `gorm:"index:idx_class_config,unique;not null" json:"grade"`
	Section     int    `gorm:"index:idx_class_config,unique;not null" json:"section"`
	End         int    `gorm:"not null" json:"end"`
	SkipNumbers string `gorm:"default:'[]'" json:"skip_numbers"`
}

func (ClassConfig) TableName() string {
	return "class_configs"
}

// Latest board snapshot for one class; only updated_at matters to the
// public status surface (active/stale/unknown).
type ClassState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Grade     int       `gorm:"index:idx_class_state,unique;not null" json:"grade"`
	Section   int       `gorm:"index:idx_class_state,unique;not null" json:"section"`
	Data      string    `gorm:"type:text;not null" json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ClassState) TableName() string {
	return "class_states"
}

type CalendarEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Grade       int        `gorm:"index:idx_event_class;not null" json:"grade"`
	Section     int        `gorm:"index:idx_event_class;not null" json:"section"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	EventDate   time.Time  `gorm:"type:date;index;not null" json:"event_date"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}
