package services

import (
	"context"
	"testing"
	"time"

	"coach-gamification/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStreakAdvanceAndReset(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	ctx := context.Background()

	var res *StreakResult
	var err error
	for i := 0; i < 5; i++ {
		res, err = f.streaks.UpdateStreak(ctx, "u1", true)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), res.CurrentStreak)
	assert.Equal(t, int64(5), res.LongestStreak)

	res, err = f.streaks.UpdateStreak(ctx, "u1", false)
	require.NoError(t, err)
	assert.Zero(t, res.CurrentStreak)
	assert.Equal(t, int64(5), res.LongestStreak)

	for i := 0; i < 2; i++ {
		res, err = f.streaks.UpdateStreak(ctx, "u1", true)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), res.CurrentStreak)
	assert.Equal(t, int64(5), res.LongestStreak)
}

func TestUpdateStreakGrantsStreakBadgesOnce(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	ctx := context.Background()

	granted := map[string]int{}
	for i := 1; i <= 8; i++ {
		res, err := f.streaks.UpdateStreak(ctx, "u1", true)
		require.NoError(t, err)
		for _, b := range res.Badges {
			require.True(t, b.Awarded)
			granted[b.Badge.ID]++
		}
		switch i {
		case 3:
			require.Len(t, res.Badges, 1)
			assert.Equal(t, "streak_3", res.Badges[0].Badge.ID)
		case 7:
			require.Len(t, res.Badges, 1)
			assert.Equal(t, "streak_7", res.Badges[0].Badge.ID)
		default:
			assert.Empty(t, res.Badges, "day %d", i)
		}
	}
	assert.Equal(t, map[string]int{"streak_3": 1, "streak_7": 1}, granted)

	var n int64
	require.NoError(t, f.db.Model(&models.BadgeGrant{}).
		Where("external_user_id = ? AND badge_id = ?", "u1", "streak_7").
		Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestUpdateStreakUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.streaks.UpdateStreak(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRecordStreakDaySkipsProcessedDays(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	ctx := context.Background()
	day1 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	res, err := f.streaks.RecordStreakDay(ctx, "u1", day1, true)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(1), res.CurrentStreak)

	res, err = f.streaks.RecordStreakDay(ctx, "u1", day1, true)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(1), res.CurrentStreak)

	res, err = f.streaks.RecordStreakDay(ctx, "u1", day1.AddDate(0, 0, -1), false)
	require.NoError(t, err)
	assert.False(t, res.Applied, "an earlier day never rewrites the streak")
	assert.Equal(t, int64(1), res.CurrentStreak)

	res, err = f.streaks.RecordStreakDay(ctx, "u1", day1.AddDate(0, 0, 1), true)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(2), res.CurrentStreak)

	res, err = f.streaks.RecordStreakDay(ctx, "u1", day1.AddDate(0, 0, 2), false)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Zero(t, res.CurrentStreak)
	assert.Equal(t, int64(2), res.LongestStreak)

	var prog models.UserProgress
	require.NoError(t, f.db.First(&prog, "external_user_id = ?", "u1").Error)
	assert.Equal(t, "2026-05-03", prog.LastStreakDay)
}
