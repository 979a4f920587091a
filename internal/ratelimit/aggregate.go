package ratelimit

import (
	"time"

	"github.com/dimicheck/public-api/internal/models"
)

// AggregateUsage sums minute and day counts across an account's ledger
// rows. Only rows whose stored window or day matches the reference
// contribute; stale rows count zero without being reset. Reads never
// mutate.
func AggregateUsage(rows []models.UsageLedger, minuteWindow, day time.Time) (int64, int64) {
	var minuteTotal, dayTotal int64

	for _, row := range rows {
		if row.MinuteWindowStart.Equal(minuteWindow) {
			minuteTotal += row.MinuteCount
		}
		if SameDate(row.Day, day) {
			dayTotal += row.DayCount
		}
	}

	return minuteTotal, dayTotal
}

// AggregateDayCount sums day counts across rows stored for one calendar day.
func AggregateDayCount(rows []models.UsageLedger, day time.Time) int64 {
	var total int64
	for _, row := range rows {
		if SameDate(row.Day, day) {
			total += row.DayCount
		}
	}
	return total
}

// Ledger days are normalized to UTC midnight of the reference-location
// date, but Postgres round-trips can reattach an offset; compare by date.
func SameDate(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
