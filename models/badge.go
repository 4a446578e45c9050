package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BadgeGrant is an awarded badge. The composite unique index is what makes
// a grant exactly-once per (user, badge) under concurrent inserts.
type BadgeGrant struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex:idx_badge_grant_user_badge,priority:1;not null" json:"external_user_id"`
	BadgeID        string    `gorm:"uniqueIndex:idx_badge_grant_user_badge,priority:2;size:64;not null" json:"badge_id"`
	EarnedAt       time.Time `gorm:"not null" json:"earned_at"`
}

func (g *BadgeGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.EarnedAt.IsZero() {
		g.EarnedAt = time.Now().UTC()
	}
	return nil
}
