package tier

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/google/uuid"
)

// StatSource is the slice of the hourly stat store the evaluator reads.
type StatSource interface {
	HourlyStatsSince(ctx context.Context, userID uuid.UUID, from time.Time) ([]models.HourlyUsageStat, error)
	TotalRequests(ctx context.Context, userID uuid.UUID) (int64, error)
}

type EligibilityConfig struct {
	// Raw requests a day needs to count toward the streak of qualifying days.
	DailyThreshold int64
	// Distinct qualifying days required inside the window.
	RequiredDays int
	// Lifetime raw request total required.
	RequiredTotal int64
	// Trailing window in days.
	WindowDays int
}

func DefaultEligibilityConfig() EligibilityConfig {
	return EligibilityConfig{
		DailyThreshold: 20,
		RequiredDays:   3,
		RequiredTotal:  150,
		WindowDays:     7,
	}
}

// Progress reports how close an account is to a tier upgrade.
type Progress struct {
	DaysOverThreshold int   `json:"days_over_threshold"`
	RequiredDays      int   `json:"required_days"`
	DaysMissing       int   `json:"days_missing"`
	DailyThreshold    int64 `json:"daily_threshold"`
	TotalRequests     int64 `json:"total_requests"`
	RequiredTotal     int64 `json:"required_total"`
	TotalMissing      int64 `json:"total_missing"`
	DaysMet           bool  `json:"days_met"`
	TotalMet          bool  `json:"total_met"`
	Eligible          bool  `json:"eligible"`
}

// EligibilityEvaluator decides whether an account's sustained usage
// qualifies it for the next tier. It only reads hourly stats, never the
// live ledger.
type EligibilityEvaluator struct {
	stats StatSource
	cfg   EligibilityConfig
	loc   *time.Location
	now   func() time.Time
}

func NewEligibilityEvaluator(stats StatSource, cfg EligibilityConfig, loc *time.Location, now func() time.Time) *EligibilityEvaluator {
	if cfg.WindowDays <= 0 {
		cfg = DefaultEligibilityConfig()
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &EligibilityEvaluator{stats: stats, cfg: cfg, loc: loc, now: now}
}

func (e *EligibilityEvaluator) Evaluate(ctx context.Context, userID uuid.UUID) (*Progress, error) {
	ref := e.now().In(e.loc)
	y, m, d := ref.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, e.loc).AddDate(0, 0, -(e.cfg.WindowDays - 1))

	rows, err := e.stats.HourlyStatsSince(ctx, userID, from)
	if err != nil {
		return nil, err
	}

	perDay := make(map[string]int64)
	for _, row := range rows {
		day := row.HourStart.In(e.loc).Format("2006-01-02")
		perDay[day] += row.RequestCount
	}

	daysOver := 0
	for _, count := range perDay {
		if count >= e.cfg.DailyThreshold {
			daysOver++
		}
	}

	total, err := e.stats.TotalRequests(ctx, userID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		DaysOverThreshold: daysOver,
		RequiredDays:      e.cfg.RequiredDays,
		DailyThreshold:    e.cfg.DailyThreshold,
		TotalRequests:     total,
		RequiredTotal:     e.cfg.RequiredTotal,
		DaysMet:           daysOver >= e.cfg.RequiredDays,
		TotalMet:          total >= e.cfg.RequiredTotal,
	}
	progress.Eligible = progress.DaysMet && progress.TotalMet

	if missing := e.cfg.RequiredDays - daysOver; missing > 0 {
		progress.DaysMissing = missing
	}
	if missing := e.cfg.RequiredTotal - total; missing > 0 {
		progress.TotalMissing = missing
	}

	return progress, nil
}
