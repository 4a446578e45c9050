package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The SQLite fixture runs on one connection, so these pin the statements
// that keep concurrent writers correct on Postgres.

func TestAwardPointsIncrementsInStore(t *testing.T) {
	db, mock := newMockDB(t)
	points := NewProgressionService(db, DefaultCatalog())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "user_progresses" SET "total_points"=total_points \+ \$1,"updated_at"=\$2 WHERE external_user_id = \$3`).
		WithArgs(int64(5), sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT "total_points" FROM "user_progresses" WHERE external_user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"total_points"}).AddRow(130))
	mock.ExpectExec(`INSERT INTO "points_histories"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := points.AwardPoints(context.Background(), "u1", 5, ReasonLogActivity, "")
	require.NoError(t, err)
	assert.Equal(t, int64(130), res.NewTotal)
	assert.False(t, res.LevelUp)
	assert.NotEmpty(t, res.HistoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardPointsNoRowRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	points := NewProgressionService(db, DefaultCatalog())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "user_progresses" SET "total_points"=total_points \+ \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := points.AwardPoints(context.Background(), "ghost", 5, ReasonLogActivity, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStreakSingleStatement(t *testing.T) {
	db, mock := newMockDB(t)
	streaks := NewStreakService(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "user_progresses" SET "current_streak"=current_streak \+ 1,` +
		`"longest_streak"=CASE WHEN current_streak \+ 1 > longest_streak THEN current_streak \+ 1 ELSE longest_streak END,` +
		`"updated_at"=\$1 WHERE external_user_id = \$2`).
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "user_progresses" WHERE external_user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_user_id", "current_streak", "longest_streak"}).
			AddRow("p1", "u1", 4, 6))
	mock.ExpectCommit()

	res, err := streaks.UpdateStreak(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(4), res.CurrentStreak)
	assert.Equal(t, int64(6), res.LongestStreak)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStreakDayGuardsOnLastDay(t *testing.T) {
	db, mock := newMockDB(t)
	streaks := NewStreakService(db, nil)
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "user_progresses" SET "current_streak"=\$1,"last_streak_day"=\$2,"updated_at"=\$3 ` +
		`WHERE external_user_id = \$4 AND last_streak_day < \$5`).
		WithArgs(0, "2024-05-02", sqlmock.AnyArg(), "u1", "2024-05-02").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "user_progresses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_user_id", "current_streak", "longest_streak", "last_streak_day"}).
			AddRow("p1", "u1", 2, 6, "2024-05-02"))
	mock.ExpectCommit()

	res, err := streaks.RecordStreakDay(context.Background(), "u1", day, false)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(2), res.CurrentStreak)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardBadgeLosesInsertRace(t *testing.T) {
	db, mock := newMockDB(t)
	badges := NewBadgeService(db, DefaultCatalog(), nil)
	winner := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "badge_grants" WHERE external_user_id = \$1 AND badge_id = \$2`).
		WithArgs("u1", BadgeFirstStep, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "user_progresses"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO "badge_grants" .* ON CONFLICT \("external_user_id","badge_id"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "badge_grants" WHERE external_user_id = \$1 AND badge_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_user_id", "badge_id", "earned_at"}).
			AddRow("g-winner", "u1", BadgeFirstStep, winner))
	mock.ExpectCommit()

	award, err := badges.AwardBadge(context.Background(), "u1", BadgeFirstStep)
	require.NoError(t, err)
	assert.False(t, award.Awarded)
	assert.True(t, award.EarnedAt.Equal(winner))
	assert.NoError(t, mock.ExpectationsWereMet())
}
