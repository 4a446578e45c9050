package services

import (
	"context"
	"fmt"
	"time"

	"coach-gamification/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IconResolver turns a badge icon reference into a URL clients can load.
type IconResolver interface {
	IconURL(ctx context.Context, ref string) string
}

type BadgeView struct {
	BadgeDefinition
	IconURL  string     `json:"icon_url"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// Snapshot is the read-only gamification summary of one user.
type Snapshot struct {
	UserID         string                 `json:"user_id"`
	TotalPoints    int64                  `json:"total_points"`
	Level          LevelInfo              `json:"level"`
	CurrentStreak  int64                  `json:"current_streak"`
	LongestStreak  int64                  `json:"longest_streak"`
	EarnedBadges   []BadgeView            `json:"earned_badges"`
	UnearnedBadges []BadgeView            `json:"unearned_badges"`
	RecentHistory  []models.PointsHistory `json:"recent_history"`
}

type StatsService struct {
	DB           *gorm.DB
	Catalog      *Catalog
	Icons        IconResolver
	HistoryLimit int

	log *logrus.Entry
}

func NewStatsService(db *gorm.DB, catalog *Catalog, icons IconResolver, historyLimit int) *StatsService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &StatsService{
		DB:           db,
		Catalog:      catalog,
		Icons:        icons,
		HistoryLimit: historyLimit,
		log:          logrus.WithField("component", "stats"),
	}
}

// GetGamificationStats never writes. All reads share one read-only
// transaction so points, badges and history come from the same snapshot.
// A user without a progress row gets a zeroed snapshot rather than an error.
func (s *StatsService) GetGamificationStats(ctx context.Context, externalUserID string) (*Snapshot, error) {
	snap := &Snapshot{
		UserID:         externalUserID,
		EarnedBadges:   []BadgeView{},
		UnearnedBadges: []BadgeView{},
		RecentHistory:  []models.PointsHistory{},
	}

	var (
		progs  []models.UserProgress
		grants []models.BadgeGrant
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY").Error; err != nil {
				return fmt.Errorf("begin snapshot for %s: %w", externalUserID, err)
			}
		}
		if err := tx.Where("external_user_id = ?", externalUserID).Limit(1).Find(&progs).Error; err != nil {
			return fmt.Errorf("load progress for %s: %w", externalUserID, err)
		}
		if err := tx.Where("external_user_id = ?", externalUserID).
			Order("earned_at ASC").
			Find(&grants).Error; err != nil {
			return fmt.Errorf("load badge grants for %s: %w", externalUserID, err)
		}
		if err := tx.Where("external_user_id = ?", externalUserID).
			Order("created_at DESC").
			Order("id DESC").
			Limit(s.HistoryLimit).
			Find(&snap.RecentHistory).Error; err != nil {
			return fmt.Errorf("load points history for %s: %w", externalUserID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(progs) == 1 {
		snap.TotalPoints = max(progs[0].TotalPoints, 0)
		snap.CurrentStreak = max(progs[0].CurrentStreak, 0)
		snap.LongestStreak = max(progs[0].LongestStreak, 0)
	}
	snap.Level = s.Catalog.LevelFromPoints(snap.TotalPoints)

	earned := make(map[string]time.Time, len(grants))
	for _, g := range grants {
		if _, ok := s.Catalog.Badge(g.BadgeID); !ok {
			s.log.WithFields(logrus.Fields{"user_id": externalUserID, "badge_id": g.BadgeID}).
				Warn("⚠️ grant for badge missing from catalog, skipped")
			continue
		}
		earned[g.BadgeID] = g.EarnedAt
	}

	for _, def := range s.Catalog.Badges {
		view := BadgeView{BadgeDefinition: def, IconURL: s.iconURL(ctx, def.Icon)}
		if at, ok := earned[def.ID]; ok {
			view.EarnedAt = &at
			snap.EarnedBadges = append(snap.EarnedBadges, view)
		} else {
			snap.UnearnedBadges = append(snap.UnearnedBadges, view)
		}
	}
	return snap, nil
}

func (s *StatsService) iconURL(ctx context.Context, ref string) string {
	if s.Icons == nil {
		return ref
	}
	return s.Icons.IconURL(ctx, ref)
}
