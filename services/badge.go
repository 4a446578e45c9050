package services

import (
	"context"
	"fmt"
	"time"

	"coach-gamification/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeAward reports the outcome of a grant attempt. Awarded is true only for
// the call that actually inserted the grant.
type BadgeAward struct {
	Awarded  bool            `json:"awarded"`
	Badge    BadgeDefinition `json:"badge"`
	EarnedAt time.Time       `json:"earned_at"`
}

type BadgeService struct {
	DB      *gorm.DB
	Catalog *Catalog
	Points  *ProgressionService

	log *logrus.Entry
}

func NewBadgeService(db *gorm.DB, catalog *Catalog, points *ProgressionService) *BadgeService {
	return &BadgeService{
		DB:      db,
		Catalog: catalog,
		Points:  points,
		log:     logrus.WithField("component", "badges"),
	}
}

// AwardBadge grants badgeID to the user at most once ever. Repeated or
// concurrent calls return Awarded=false with the first earned time.
func (s *BadgeService) AwardBadge(ctx context.Context, externalUserID, badgeID string) (*BadgeAward, error) {
	def, ok := s.Catalog.Badge(badgeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBadge, badgeID)
	}

	var award *BadgeAward
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.grantTx(tx, externalUserID, def)
		award = a
		return err
	})
	if err != nil {
		return nil, err
	}
	if award.Awarded {
		observeBadges([]BadgeAward{*award})
		s.log.WithFields(logrus.Fields{"user_id": externalUserID, "badge_id": badgeID}).Info("🎖️ badge awarded")
	}
	return award, nil
}

// GrantThresholdBadges grants every badge of the given kind whose threshold is
// reached by value, inside the caller's transaction. Only new grants are returned.
func (s *BadgeService) GrantThresholdBadges(ctx context.Context, tx *gorm.DB, externalUserID string, kind CriteriaKind, value int64) ([]BadgeAward, error) {
	var awarded []BadgeAward
	for _, def := range s.Catalog.BadgesFor(kind, value) {
		a, err := s.grantTx(tx, externalUserID, def)
		if err != nil {
			return nil, err
		}
		if a.Awarded {
			awarded = append(awarded, *a)
		}
	}
	return awarded, nil
}

// LevelUpHook adapts level-threshold badges to ProgressionService.OnLevelUp.
func (s *BadgeService) LevelUpHook() LevelUpFunc {
	return func(ctx context.Context, tx *gorm.DB, userID string, level LevelInfo) ([]BadgeAward, error) {
		return s.GrantThresholdBadges(ctx, tx, userID, CriteriaLevel, int64(level.Level))
	}
}

func (s *BadgeService) grantTx(tx *gorm.DB, externalUserID string, def BadgeDefinition) (*BadgeAward, error) {
	// Fast path only; the unique index below is the real gate.
	if existing, err := findGrant(tx, externalUserID, def.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return &BadgeAward{Awarded: false, Badge: def, EarnedAt: existing.EarnedAt}, nil
	}

	var users int64
	if err := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Count(&users).Error; err != nil {
		return nil, fmt.Errorf("check user %s: %w", externalUserID, err)
	}
	if users == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, externalUserID)
	}

	grant := models.BadgeGrant{
		ExternalUserID: externalUserID,
		BadgeID:        def.ID,
		EarnedAt:       time.Now().UTC(),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&grant)
	if res.Error != nil {
		return nil, fmt.Errorf("insert badge grant %s for %s: %w", def.ID, externalUserID, res.Error)
	}
	if res.RowsAffected == 1 {
		return &BadgeAward{Awarded: true, Badge: def, EarnedAt: grant.EarnedAt}, nil
	}

	// A concurrent grant won the insert.
	winner, err := findGrant(tx, externalUserID, def.ID)
	if err != nil {
		return nil, err
	}
	earnedAt := grant.EarnedAt
	if winner != nil {
		earnedAt = winner.EarnedAt
	}
	return &BadgeAward{Awarded: false, Badge: def, EarnedAt: earnedAt}, nil
}

func findGrant(tx *gorm.DB, externalUserID, badgeID string) (*models.BadgeGrant, error) {
	var grants []models.BadgeGrant
	if err := tx.Where("external_user_id = ? AND badge_id = ?", externalUserID, badgeID).
		Limit(1).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("lookup badge grant %s for %s: %w", badgeID, externalUserID, err)
	}
	if len(grants) == 0 {
		return nil, nil
	}
	return &grants[0], nil
}

// CheckDailyCompletionBadge reports whether every daily action of the user
// for day is complete (a day with no actions never is). When it is, the
// configured daily_completion bonus is paid, at most once per user and day.
func (s *BadgeService) CheckDailyCompletionBadge(ctx context.Context, externalUserID string, day time.Time) (bool, error) {
	dayKey := day.Format(models.DayLayout)

	var counts struct {
		Total     int64
		Completed int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.DailyAction{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0) AS completed").
		Where("external_user_id = ? AND day = ?", externalUserID, dayKey).
		Scan(&counts).Error; err != nil {
		return false, fmt.Errorf("count daily actions for %s on %s: %w", externalUserID, dayKey, err)
	}
	if counts.Total == 0 || counts.Total != counts.Completed {
		return false, nil
	}

	points, ok := s.Catalog.PointsFor(ReasonDailyCompletion)
	if !ok || s.Points == nil {
		return true, nil
	}

	var award *AwardResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		marker := models.DailyBonus{ExternalUserID: externalUserID, Day: dayKey}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if ins.Error != nil {
			return fmt.Errorf("claim daily bonus for %s on %s: %w", externalUserID, dayKey, ins.Error)
		}
		if ins.RowsAffected == 0 {
			return nil // already paid
		}

		a, err := s.Points.awardTx(ctx, tx, externalUserID, points, ReasonDailyCompletion, dayKey)
		if err != nil {
			return err
		}
		award = a
		return tx.Model(&models.DailyBonus{}).
			Where("external_user_id = ? AND day = ?", externalUserID, dayKey).
			Update("history_id", a.HistoryID).Error
	})
	if err != nil {
		return false, err
	}

	if award != nil {
		dailyBonuses.Inc()
		s.Points.observe(externalUserID, ReasonDailyCompletion, award)
		s.log.WithFields(logrus.Fields{"user_id": externalUserID, "day": dayKey}).Info("✅ all daily actions complete, bonus paid")
	}
	return true, nil
}

func observeBadges(awards []BadgeAward) {
	for _, a := range awards {
		if a.Awarded {
			badgesGranted.WithLabelValues(a.Badge.ID).Inc()
		}
	}
}
