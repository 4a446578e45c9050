package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteActionReportsFirstCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)

	a, err := f.actions.AddAction(ctx, "u1", day, "Evening walk")
	require.NoError(t, err)
	assert.Equal(t, "2026-06-02", a.Day)
	assert.False(t, a.Completed)

	done, changed, err := f.actions.CompleteAction(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, done.Completed)
	assert.NotNil(t, done.CompletedAt)

	_, changed, err = f.actions.CompleteAction(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = f.actions.CompleteAction(ctx, "someone-else", a.ID)
	assert.ErrorIs(t, err, ErrActionNotFound)
	_, _, err = f.actions.CompleteAction(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestParseDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	day, err := ParseDay("2026-10-18", loc)
	require.NoError(t, err)
	assert.Equal(t, loc, day.Location())
	assert.Equal(t, 18, day.Day())
	assert.Zero(t, day.Hour())

	_, err = ParseDay("18/10/2026", nil)
	assert.ErrorIs(t, err, ErrInvalidDay)
}
