package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coach-gamification/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelUpFunc runs inside the award transaction when a user's level increases.
// Whatever it writes commits or rolls back together with the award.
type LevelUpFunc func(ctx context.Context, tx *gorm.DB, userID string, level LevelInfo) ([]BadgeAward, error)

// AwardResult is what callers relay to the user after an award.
type AwardResult struct {
	PointsAwarded int64        `json:"points_awarded"`
	NewTotal      int64        `json:"new_total"`
	LevelUp       bool         `json:"level_up"`
	NewLevel      *LevelInfo   `json:"new_level,omitempty"`
	Badges        []BadgeAward `json:"badges,omitempty"`
	HistoryID     string       `json:"history_id"`
}

// LedgerBalance compares the stored total with the sum of the history rows.
type LedgerBalance struct {
	TotalPoints int64 `json:"total_points"`
	HistorySum  int64 `json:"history_sum"`
	Entries     int64 `json:"entries"`
	Consistent  bool  `json:"consistent"`
}

type ProgressionService struct {
	DB        *gorm.DB
	Catalog   *Catalog
	OnLevelUp LevelUpFunc

	log *logrus.Entry
}

func NewProgressionService(db *gorm.DB, catalog *Catalog) *ProgressionService {
	return &ProgressionService{
		DB:      db,
		Catalog: catalog,
		log:     logrus.WithField("component", "progression"),
	}
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent)
func (s *ProgressionService) EnsureProgressRecord(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	if externalUserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrUserNotFound)
	}
	db := s.DB.WithContext(ctx)

	prog := models.UserProgress{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&prog).Error; err != nil {
		return nil, fmt.Errorf("create progress record for %s: %w", externalUserID, err)
	}

	var stored models.UserProgress
	if err := db.Where("external_user_id = ?", externalUserID).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, externalUserID)
		}
		return nil, fmt.Errorf("load progress record for %s: %w", externalUserID, err)
	}
	return &stored, nil
}

// GetLevelFromPoints is the pure level lookup over the configured thresholds.
func (s *ProgressionService) GetLevelFromPoints(points int64) LevelInfo {
	return s.Catalog.LevelFromPoints(points)
}

// AwardPoints adds points to the user's total and appends one history row in
// a single transaction. The increment is done by the store, so concurrent
// awards for the same user serialize on the row instead of overwriting.
func (s *ProgressionService) AwardPoints(ctx context.Context, externalUserID string, points int64, reason, referenceID string) (*AwardResult, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPoints, points)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: empty reason", ErrUnknownReason)
	}

	var res *AwardResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.awardTx(ctx, tx, externalUserID, points, reason, referenceID)
		res = r
		return err
	})
	if err != nil {
		awardsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	s.observe(externalUserID, reason, res)
	return res, nil
}

// AwardForReason awards the configured point value of reason.
func (s *ProgressionService) AwardForReason(ctx context.Context, externalUserID, reason, referenceID string) (*AwardResult, error) {
	points, ok := s.Catalog.PointsFor(reason)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReason, reason)
	}
	return s.AwardPoints(ctx, externalUserID, points, reason, referenceID)
}

func (s *ProgressionService) awardTx(ctx context.Context, tx *gorm.DB, externalUserID string, points int64, reason, referenceID string) (*AwardResult, error) {
	upd := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Updates(map[string]interface{}{
			"total_points": gorm.Expr("total_points + ?", points),
		})
	if upd.Error != nil {
		return nil, fmt.Errorf("increment points for %s: %w", externalUserID, upd.Error)
	}
	if upd.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, externalUserID)
	}

	// Same transaction, row still locked by the UPDATE: this is our post-increment total.
	var totals []int64
	if err := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Pluck("total_points", &totals).Error; err != nil {
		return nil, fmt.Errorf("read points total for %s: %w", externalUserID, err)
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, externalUserID)
	}
	newTotal := totals[0]

	entry := models.PointsHistory{
		ExternalUserID: externalUserID,
		Points:         points,
		Reason:         reason,
	}
	if referenceID != "" {
		entry.ReferenceID = &referenceID
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("append points history for %s: %w", externalUserID, err)
	}

	res := &AwardResult{
		PointsAwarded: points,
		NewTotal:      newTotal,
		HistoryID:     entry.ID,
	}

	oldLevel := s.Catalog.LevelFromPoints(newTotal - points)
	newLevel := s.Catalog.LevelFromPoints(newTotal)
	if newLevel.Level <= oldLevel.Level {
		return res, nil
	}

	res.LevelUp = true
	res.NewLevel = &newLevel
	if err := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		UpdateColumn("last_level_up_at", time.Now().UTC()).Error; err != nil {
		return nil, fmt.Errorf("stamp level-up for %s: %w", externalUserID, err)
	}
	if s.OnLevelUp != nil {
		badges, err := s.OnLevelUp(ctx, tx, externalUserID, newLevel)
		if err != nil {
			return nil, fmt.Errorf("level-up side effects for %s: %w", externalUserID, err)
		}
		res.Badges = badges
	}
	return res, nil
}

// observe records metrics and logs for a committed award.
func (s *ProgressionService) observe(externalUserID, reason string, res *AwardResult) {
	awardsTotal.WithLabelValues("ok").Inc()
	pointsAwarded.WithLabelValues(reason).Add(float64(res.PointsAwarded))
	observeBadges(res.Badges)

	entry := s.log.WithFields(logrus.Fields{
		"user_id": externalUserID,
		"points":  res.PointsAwarded,
		"total":   res.NewTotal,
		"reason":  reason,
	})
	if res.LevelUp {
		levelUps.Inc()
		entry.WithField("new_level", res.NewLevel.Level).Info("🎉 points awarded, level up")
		return
	}
	entry.Debug("🎮 points awarded")
}

// RecentHistory returns the newest history rows first.
func (s *ProgressionService) RecentHistory(ctx context.Context, externalUserID string, limit int) ([]models.PointsHistory, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	history := []models.PointsHistory{}
	err := s.DB.WithContext(ctx).
		Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("load points history for %s: %w", externalUserID, err)
	}
	return history, nil
}

// LedgerBalance audits the sum invariant between total_points and the history.
func (s *ProgressionService) LedgerBalance(ctx context.Context, externalUserID string) (*LedgerBalance, error) {
	var bal LedgerBalance
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var totals []int64
		if err := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ?", externalUserID).
			Pluck("total_points", &totals).Error; err != nil {
			return err
		}
		if len(totals) == 0 {
			return fmt.Errorf("%w: %s", ErrUserNotFound, externalUserID)
		}
		bal.TotalPoints = totals[0]

		var agg struct {
			Entries int64
			Total   int64
		}
		if err := tx.Model(&models.PointsHistory{}).
			Select("COUNT(*) AS entries, COALESCE(SUM(points), 0) AS total").
			Where("external_user_id = ?", externalUserID).
			Scan(&agg).Error; err != nil {
			return err
		}
		bal.Entries = agg.Entries
		bal.HistorySum = agg.Total
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger balance for %s: %w", externalUserID, err)
	}
	bal.Consistent = bal.TotalPoints == bal.HistorySum
	return &bal, nil
}
