package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress holds the per-user gamification counters (one row per user).
// Every write to it is a single atomic UPDATE issued by the services package.
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	TotalPoints   int64 `json:"total_points" gorm:"not null;default:0"`
	CurrentStreak int64 `json:"current_streak" gorm:"not null;default:0"`
	LongestStreak int64 `json:"longest_streak" gorm:"not null;default:0"`

	// Last calendar day (YYYY-MM-DD) applied by the daily streak rollup.
	LastStreakDay string `json:"last_streak_day" gorm:"type:varchar(10);not null;default:''"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
