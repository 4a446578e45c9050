// workers/streak_rollup_worker.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coach-gamification/models"
	"coach-gamification/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RollupStats summarizes one pass over all users for one day.
type RollupStats struct {
	Day       string `json:"day"`
	Processed int    `json:"processed"`
	Advanced  int    `json:"advanced"`
	Reset     int    `json:"reset"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// StreakRollupWorker decides, once a day, whether each user was active on the
// previous day and feeds that into the streak engine.
type StreakRollupWorker struct {
	db        *gorm.DB
	streaks   *services.StreakService
	location  *time.Location
	hour      uint
	minute    uint
	batchSize int
	scheduler gocron.Scheduler
	stopOnce  sync.Once
	stopErr   error
	log       *logrus.Entry
}

func NewStreakRollupWorker(db *gorm.DB, streaks *services.StreakService, location *time.Location, hour, minute uint) *StreakRollupWorker {
	if location == nil {
		location = time.UTC
	}
	return &StreakRollupWorker{
		db:        db,
		streaks:   streaks,
		location:  location,
		hour:      hour,
		minute:    minute,
		batchSize: 200,
		log:       logrus.WithField("component", "streak_rollup"),
	}
}

// Start schedules the daily job and stops it when ctx is done.
func (w *StreakRollupWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(w.location))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(w.hour, w.minute, 0))),
		gocron.NewTask(func() {
			yesterday := time.Now().In(w.location).AddDate(0, 0, -1)
			if _, err := w.RunForDay(ctx, yesterday); err != nil {
				w.log.WithError(err).Error("❌ streak rollup failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule streak rollup: %w", err)
	}

	w.scheduler = sched
	sched.Start()
	w.log.Infof("🔁 streak rollup scheduled daily at %02d:%02d %s", w.hour, w.minute, w.location)

	go func() {
		<-ctx.Done()
		if err := w.Stop(); err != nil {
			w.log.WithError(err).Warn("⚠️ scheduler shutdown")
		}
		w.log.Info("⏹️ streak rollup stopped")
	}()
	return nil
}

// Stop shuts the scheduler down; later calls return the first result.
func (w *StreakRollupWorker) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	w.stopOnce.Do(func() {
		w.stopErr = w.scheduler.Shutdown()
	})
	return w.stopErr
}

// RunForDay applies one calendar day to every user not yet rolled up for it.
// A user counts as active when they earned points or completed a daily
// action that day.
func (w *StreakRollupWorker) RunForDay(ctx context.Context, day time.Time) (*RollupStats, error) {
	local := day.In(w.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.location)
	end := start.AddDate(0, 0, 1)
	dayKey := start.Format(models.DayLayout)
	db := w.db.WithContext(ctx)

	active, err := w.activeUsers(db, start, end, dayKey)
	if err != nil {
		return nil, err
	}

	stats := &RollupStats{Day: dayKey}
	var batch []models.UserProgress
	res := db.Select("id", "external_user_id").
		Where("last_streak_day < ?", dayKey).
		FindInBatches(&batch, w.batchSize, func(tx *gorm.DB, _ int) error {
			for _, prog := range batch {
				stats.Processed++
				_, isActive := active[prog.ExternalUserID]
				r, err := w.streaks.RecordStreakDay(ctx, prog.ExternalUserID, start, isActive)
				switch {
				case err != nil:
					stats.Failed++
					w.log.WithError(err).WithField("user_id", prog.ExternalUserID).Warn("⚠️ streak update failed")
				case !r.Applied:
					stats.Skipped++
				case isActive:
					stats.Advanced++
				default:
					stats.Reset++
				}
			}
			return ctx.Err()
		})
	if res.Error != nil {
		return stats, fmt.Errorf("iterate users for %s: %w", dayKey, res.Error)
	}

	w.log.WithFields(logrus.Fields{
		"day":       dayKey,
		"processed": stats.Processed,
		"advanced":  stats.Advanced,
		"reset":     stats.Reset,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
	}).Info("✅ streak rollup done")
	return stats, nil
}

func (w *StreakRollupWorker) activeUsers(db *gorm.DB, start, end time.Time, dayKey string) (map[string]struct{}, error) {
	var earners []string
	if err := db.Model(&models.PointsHistory{}).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Distinct().
		Pluck("external_user_id", &earners).Error; err != nil {
		return nil, fmt.Errorf("load active users for %s: %w", dayKey, err)
	}

	var completers []string
	if err := db.Model(&models.DailyAction{}).
		Where("day = ? AND completed = ?", dayKey, true).
		Distinct().
		Pluck("external_user_id", &completers).Error; err != nil {
		return nil, fmt.Errorf("load completed actions for %s: %w", dayKey, err)
	}

	active := make(map[string]struct{}, len(earners)+len(completers))
	for _, id := range earners {
		active[id] = struct{}{}
	}
	for _, id := range completers {
		active[id] = struct{}{}
	}
	return active, nil
}
