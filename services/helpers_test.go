package services

import (
	"context"
	"testing"

	"coach-gamification/testdb"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db      *gorm.DB
	catalog *Catalog
	points  *ProgressionService
	badges  *BadgeService
	streaks *StreakService
	actions *DailyActionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.New(t)
	catalog := DefaultCatalog()
	points := NewProgressionService(db, catalog)
	badges := NewBadgeService(db, catalog, points)
	points.OnLevelUp = badges.LevelUpHook()
	return &fixture{
		db:      db,
		catalog: catalog,
		points:  points,
		badges:  badges,
		streaks: NewStreakService(db, badges),
		actions: NewDailyActionService(db),
	}
}

func (f *fixture) user(t *testing.T, id string) {
	t.Helper()
	_, err := f.points.EnsureProgressRecord(context.Background(), id)
	require.NoError(t, err)
}

// newMockDB opens gorm over sqlmock with the postgres dialector, for
// store-outage tests and for pinning the exact statements a write issues.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}
