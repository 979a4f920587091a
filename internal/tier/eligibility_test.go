package tier

import (
	"context"
	"testing"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatSource struct {
	rows  []models.HourlyUsageStat
	total int64
}

func (f *fakeStatSource) HourlyStatsSince(ctx context.Context, userID uuid.UUID, from time.Time) ([]models.HourlyUsageStat, error) {
	var out []models.HourlyUsageStat
	for _, row := range f.rows {
		if !row.HourStart.Before(from) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStatSource) TotalRequests(ctx context.Context, userID uuid.UUID) (int64, error) {
	return f.total, nil
}

// Spreads count requests across hour buckets of one calendar day.
func dayOfStats(userID uuid.UUID, day time.Time, count int64) []models.HourlyUsageStat {
	return []models.HourlyUsageStat{
		{UserID: userID, HourStart: day.Add(9 * time.Hour), RequestCount: count / 2},
		{UserID: userID, HourStart: day.Add(15 * time.Hour), RequestCount: count - count/2},
	}
}

func TestEvaluateEligible(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	stats := &fakeStatSource{total: 150}
	for i := 1; i <= 3; i++ {
		stats.rows = append(stats.rows, dayOfStats(userID, today.AddDate(0, 0, -i), 20)...)
	}

	e := NewEligibilityEvaluator(stats, DefaultEligibilityConfig(), time.UTC, func() time.Time { return now })

	progress, err := e.Evaluate(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, progress.Eligible)
	assert.True(t, progress.DaysMet)
	assert.True(t, progress.TotalMet)
	assert.Equal(t, 3, progress.DaysOverThreshold)
	assert.Equal(t, 0, progress.DaysMissing)
	assert.Equal(t, int64(0), progress.TotalMissing)
}

func TestEvaluateTotalJustShort(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	stats := &fakeStatSource{total: 149}
	for i := 1; i <= 3; i++ {
		stats.rows = append(stats.rows, dayOfStats(userID, today.AddDate(0, 0, -i), 25)...)
	}

	e := NewEligibilityEvaluator(stats, DefaultEligibilityConfig(), time.UTC, func() time.Time { return now })

	progress, err := e.Evaluate(context.Background(), userID)
	require.NoError(t, err)

	assert.False(t, progress.Eligible)
	assert.True(t, progress.DaysMet)
	assert.False(t, progress.TotalMet)
	assert.Equal(t, int64(1), progress.TotalMissing)
}

func TestEvaluateNotEnoughActiveDays(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// Two qualifying days plus one just under the threshold.
	stats := &fakeStatSource{total: 500}
	stats.rows = append(stats.rows, dayOfStats(userID, today.AddDate(0, 0, -1), 40)...)
	stats.rows = append(stats.rows, dayOfStats(userID, today.AddDate(0, 0, -2), 20)...)
	stats.rows = append(stats.rows, dayOfStats(userID, today.AddDate(0, 0, -3), 19)...)

	e := NewEligibilityEvaluator(stats, DefaultEligibilityConfig(), time.UTC, func() time.Time { return now })

	progress, err := e.Evaluate(context.Background(), userID)
	require.NoError(t, err)

	assert.False(t, progress.Eligible)
	assert.Equal(t, 2, progress.DaysOverThreshold)
	assert.Equal(t, 1, progress.DaysMissing)
	assert.True(t, progress.TotalMet)
}

func TestEvaluateIgnoresDaysOutsideWindow(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// Qualifying days 8+ days back must not count toward the window.
	stats := &fakeStatSource{total: 1000}
	for i := 8; i <= 10; i++ {
		stats.rows = append(stats.rows, dayOfStats(userID, today.AddDate(0, 0, -i), 50)...)
	}

	e := NewEligibilityEvaluator(stats, DefaultEligibilityConfig(), time.UTC, func() time.Time { return now })

	progress, err := e.Evaluate(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, 0, progress.DaysOverThreshold)
	assert.False(t, progress.Eligible)
}

func TestEvaluateHourBucketsSumWithinDay(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	// No single bucket reaches the threshold, but the day does.
	stats := &fakeStatSource{total: 200}
	for h := 0; h < 10; h++ {
		stats.rows = append(stats.rows, models.HourlyUsageStat{
			UserID:       userID,
			HourStart:    yesterday.Add(time.Duration(h) * time.Hour),
			RequestCount: 2,
		})
	}

	e := NewEligibilityEvaluator(stats, DefaultEligibilityConfig(), time.UTC, func() time.Time { return now })

	progress, err := e.Evaluate(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, 1, progress.DaysOverThreshold)
}
