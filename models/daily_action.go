package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DayLayout is the calendar-day key format used by daily actions, bonuses
// and the streak rollup.
const DayLayout = "2006-01-02"

// DailyAction is an actionable item of a user's plan for one day. Rows are
// owned by the plan collaborator; the gamification engine only counts them.
type DailyAction struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string     `gorm:"index:idx_daily_action_user_day,priority:1;not null" json:"external_user_id"`
	Day            string     `gorm:"index:idx_daily_action_user_day,priority:2;type:varchar(10);not null" json:"day"`
	Title          string     `gorm:"not null" json:"title"`
	Completed      bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *DailyAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// DailyBonus marks that the all-actions-complete bonus was paid for a day.
type DailyBonus struct {
	ExternalUserID string    `gorm:"primaryKey;type:varchar(64)" json:"external_user_id"`
	Day            string    `gorm:"primaryKey;type:varchar(10)" json:"day"`
	HistoryID      string    `gorm:"type:varchar(36)" json:"history_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
