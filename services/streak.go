package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coach-gamification/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type StreakResult struct {
	CurrentStreak int64        `json:"current_streak"`
	LongestStreak int64        `json:"longest_streak"`
	Applied       bool         `json:"applied"` // false when the day was already processed
	Badges        []BadgeAward `json:"badges,omitempty"`
}

type StreakService struct {
	DB     *gorm.DB
	Badges *BadgeService

	log *logrus.Entry
}

func NewStreakService(db *gorm.DB, badges *BadgeService) *StreakService {
	return &StreakService{
		DB:     db,
		Badges: badges,
		log:    logrus.WithField("component", "streak"),
	}
}

// UpdateStreak advances the streak by one day when hasActivityToday is true,
// otherwise resets it to 0. longest_streak only ever grows.
func (s *StreakService) UpdateStreak(ctx context.Context, externalUserID string, hasActivityToday bool) (*StreakResult, error) {
	return s.apply(ctx, externalUserID, "", hasActivityToday)
}

// RecordStreakDay is UpdateStreak for a specific calendar day. A day that is
// not after the last recorded one is skipped, so reruns are harmless.
func (s *StreakService) RecordStreakDay(ctx context.Context, externalUserID string, day time.Time, hasActivity bool) (*StreakResult, error) {
	return s.apply(ctx, externalUserID, day.Format(models.DayLayout), hasActivity)
}

func (s *StreakService) apply(ctx context.Context, externalUserID, dayKey string, active bool) (*StreakResult, error) {
	res := &StreakResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if active {
			// Both columns are computed from the pre-update row in one statement.
			updates["current_streak"] = gorm.Expr("current_streak + 1")
			updates["longest_streak"] = gorm.Expr("CASE WHEN current_streak + 1 > longest_streak THEN current_streak + 1 ELSE longest_streak END")
		} else {
			updates["current_streak"] = 0
		}

		q := tx.Model(&models.UserProgress{}).Where("external_user_id = ?", externalUserID)
		if dayKey != "" {
			q = q.Where("last_streak_day < ?", dayKey)
			updates["last_streak_day"] = dayKey
		}
		upd := q.Updates(updates)
		if upd.Error != nil {
			return fmt.Errorf("update streak for %s: %w", externalUserID, upd.Error)
		}

		var prog models.UserProgress
		if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrUserNotFound, externalUserID)
			}
			return fmt.Errorf("read streak for %s: %w", externalUserID, err)
		}
		res.CurrentStreak = prog.CurrentStreak
		res.LongestStreak = prog.LongestStreak
		res.Applied = upd.RowsAffected > 0

		if res.Applied && active && s.Badges != nil {
			badges, err := s.Badges.GrantThresholdBadges(ctx, tx, externalUserID, CriteriaStreak, prog.CurrentStreak)
			if err != nil {
				return err
			}
			res.Badges = badges
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "reset"
	switch {
	case !res.Applied:
		action = "skipped"
	case active:
		action = "advance"
	}
	streakUpdates.WithLabelValues(action).Inc()
	observeBadges(res.Badges)

	s.log.WithFields(logrus.Fields{
		"user_id": externalUserID,
		"day":     dayKey,
		"action":  action,
		"current": res.CurrentStreak,
		"longest": res.LongestStreak,
	}).Debug("🔥 streak updated")
	return res, nil
}
