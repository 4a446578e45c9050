package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coach-gamification/models"

	"gorm.io/gorm"
)

// DailyActionService is the thin write side of the plan's daily items that
// the completion flow needs. Plan generation itself lives elsewhere.
type DailyActionService struct {
	DB *gorm.DB
}

func NewDailyActionService(db *gorm.DB) *DailyActionService {
	return &DailyActionService{DB: db}
}

// ParseDay parses a YYYY-MM-DD key as midnight in loc.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(models.DayLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, raw)
	}
	return day, nil
}

func (s *DailyActionService) AddAction(ctx context.Context, externalUserID string, day time.Time, title string) (*models.DailyAction, error) {
	action := models.DailyAction{
		ExternalUserID: externalUserID,
		Day:            day.Format(models.DayLayout),
		Title:          title,
	}
	if err := s.DB.WithContext(ctx).Create(&action).Error; err != nil {
		return nil, fmt.Errorf("create daily action for %s: %w", externalUserID, err)
	}
	return &action, nil
}

// CompleteAction marks the action complete. changed is false when it was
// already complete, so callers award points only on the first completion.
func (s *DailyActionService) CompleteAction(ctx context.Context, externalUserID, actionID string) (action *models.DailyAction, changed bool, err error) {
	db := s.DB.WithContext(ctx)
	now := time.Now().UTC()

	upd := db.Model(&models.DailyAction{}).
		Where("id = ? AND external_user_id = ? AND completed = ?", actionID, externalUserID, false).
		Updates(map[string]interface{}{"completed": true, "completed_at": now})
	if upd.Error != nil {
		return nil, false, fmt.Errorf("complete daily action %s: %w", actionID, upd.Error)
	}

	var stored models.DailyAction
	if err := db.Where("id = ? AND external_user_id = ?", actionID, externalUserID).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
		}
		return nil, false, fmt.Errorf("load daily action %s: %w", actionID, err)
	}
	return &stored, upd.RowsAffected > 0, nil
}
