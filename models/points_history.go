package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PointsHistory is one immutable ledger line. Rows are only ever inserted.
type PointsHistory struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string    `gorm:"index:idx_history_user_created,priority:1;not null" json:"external_user_id"`
	Points         int64     `gorm:"not null" json:"points"`
	Reason         string    `gorm:"size:64;not null" json:"reason"` // e.g. 'complete_action', 'daily_completion'
	ReferenceID    *string   `gorm:"size:64" json:"reference_id,omitempty"`
	CreatedAt      time.Time `gorm:"index:idx_history_user_created,priority:2;autoCreateTime" json:"created_at"`
}

func (h *PointsHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
