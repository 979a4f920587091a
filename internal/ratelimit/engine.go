package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/google/uuid"
)

// Clock is the single source of "now" for window and day computation.
type Clock func() time.Time

// Tx is one atomic unit against the ledger store. LedgerForUpdate must lock
// the row for the duration of the transaction; sibling reads are unlocked.
type Tx interface {
	LedgerForUpdate(apiKeyID uuid.UUID) (*models.UsageLedger, error)
	AccountLedgers(userID uuid.UUID) ([]models.UsageLedger, error)
	SaveLedger(row *models.UsageLedger) error
	AccountKeys(userID uuid.UUID) ([]models.APIKey, error)
	TouchKey(apiKeyID uuid.UUID, at time.Time) error
	SetAccountStreak(userID uuid.UUID, days int, lastDate time.Time) error
}

// Store runs fn atomically; a non-nil error from fn discards every write.
type Store interface {
	Transact(ctx context.Context, fn func(Tx) error) error
}

// Decision is the outcome of one metered admission check. Usage figures are
// account aggregates in scaled units, after the charge when allowed.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Tier        tier.Tier `json:"tier"`
	MinuteUsed  int64     `json:"minute_used"`
	MinuteCap   int64     `json:"minute_cap"`
	DayUsed     int64     `json:"day_used"`
	DayCap      int64     `json:"day_cap"`
	WindowReset time.Time `json:"window_reset"`
}

type EngineConfig struct {
	Policy *tier.Policy
	// Reference location for calendar-day boundaries. Default: UTC.
	Location *time.Location
	// Whole units per day needed to keep a usage streak alive. Default: 5.
	StreakMinDaily int64
	Clock          Clock
}

// Engine owns the quota bookkeeping: per-key minute/day windows with
// rollover, account-wide aggregation, and the cap check, all inside one
// store transaction per request.
type Engine struct {
	store          Store
	policy         *tier.Policy
	loc            *time.Location
	streakMinUnits int64
	now            Clock
}

func NewEngine(store Store, cfg EngineConfig) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = tier.DefaultPolicy()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StreakMinDaily <= 0 {
		cfg.StreakMinDaily = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		store:          store,
		policy:         cfg.Policy,
		loc:            cfg.Location,
		streakMinUnits: cfg.StreakMinDaily * tier.UnitScale,
		now:            cfg.Clock,
	}
}

func (e *Engine) Policy() *tier.Policy {
	return e.policy
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now reads the engine's clock; stat bucketing uses the same time source
// as the windowing so tests stay deterministic.
func (e *Engine) Now() time.Time {
	return e.now()
}

// RecordAndCheck charges costUnits against the key's ledger if the
// account's aggregate usage stays within its tier caps. On ErrQuotaExceeded
// the transaction is rolled back and the returned decision carries the
// pre-charge aggregates; any other error means the store is unhealthy.
//
// Sibling rows of the same account are read without locks, so two bursts
// against two keys can each overshoot the aggregate cap by at most their
// own cost. Only the charged key's row is serialized.
func (e *Engine) RecordAndCheck(ctx context.Context, key *models.APIKey, costUnits int64) (*Decision, error) {
	if costUnits < 1 {
		costUnits = 1
	}

	now := e.now()
	minuteWindow := now.Truncate(time.Minute)
	today := DateOf(now, e.loc)
	yesterday := today.AddDate(0, 0, -1)

	var decision *Decision

	err := e.store.Transact(ctx, func(tx Tx) error {
		row, err := tx.LedgerForUpdate(key.ID)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		if row == nil {
			// Brand-new key: zero usage, not an error.
			row = &models.UsageLedger{
				APIKeyID:          key.ID,
				UserID:            key.UserID,
				MinuteWindowStart: minuteWindow,
				Day:               today,
			}
		}

		keys, err := tx.AccountKeys(key.UserID)
		if err != nil {
			return fmt.Errorf("load account keys: %w", err)
		}

		rows, err := tx.AccountLedgers(key.UserID)
		if err != nil {
			return fmt.Errorf("load account ledgers: %w", err)
		}

		if !row.MinuteWindowStart.Equal(minuteWindow) {
			row.MinuteWindowStart = minuteWindow
			row.MinuteCount = 0
		}

		if !SameDate(row.Day, today) {
			// Fold the closed day into streak history before the reset.
			// Rolled back along with everything else on rejection.
			closed := AggregateDayCount(rows, yesterday)
			if err := e.foldStreak(tx, keys, yesterday, closed); err != nil {
				return fmt.Errorf("fold streak: %w", err)
			}
			row.Day = today
			row.DayCount = 0
		}

		accountTier := e.policy.Highest(tierNames(keys))

		var aggMinute, aggDay int64
		for _, sibling := range rows {
			if sibling.APIKeyID == key.ID {
				continue
			}
			if sibling.MinuteWindowStart.Equal(minuteWindow) {
				aggMinute += sibling.MinuteCount
			}
			if SameDate(sibling.Day, today) {
				aggDay += sibling.DayCount
			}
		}
		aggMinute += row.MinuteCount
		aggDay += row.DayCount

		decision = &Decision{
			Tier:        accountTier,
			MinuteCap:   accountTier.MinuteCap,
			DayCap:      accountTier.DailyCap,
			MinuteUsed:  aggMinute,
			DayUsed:     aggDay,
			WindowReset: minuteWindow.Add(time.Minute),
		}

		if aggMinute+costUnits > accountTier.MinuteCap || aggDay+costUnits > accountTier.DailyCap {
			return ErrQuotaExceeded
		}

		row.MinuteCount += costUnits
		row.DayCount += costUnits
		row.UpdatedAt = now
		if err := tx.SaveLedger(row); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		if err := tx.TouchKey(key.ID, now); err != nil {
			return fmt.Errorf("touch key: %w", err)
		}

		decision.Allowed = true
		decision.MinuteUsed = aggMinute + costUnits
		decision.DayUsed = aggDay + costUnits
		return nil
	})

	if errors.Is(err, ErrQuotaExceeded) {
		return decision, ErrQuotaExceeded
	}
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// foldStreak carries the account's daily usage streak forward when a
// ledger day closes, mirroring the account-wide streak bookkeeping the
// developer dashboard reports against.
func (e *Engine) foldStreak(tx Tx, keys []models.APIKey, closedDay time.Time, closedCount int64) error {
	if len(keys) == 0 {
		return nil
	}

	// The most advanced key is the reference; all keys are kept in step.
	ref := keys[0]
	for _, k := range keys[1:] {
		if streakAfter(k, ref) {
			ref = k
		}
	}

	currentDays := ref.StreakDays
	var currentLast time.Time
	if ref.StreakLastDate != nil {
		currentLast = DateOf(*ref.StreakLastDate, time.UTC)
	}

	if SameDate(currentLast, closedDay) {
		return nil
	}

	targetDays := 0
	if closedCount >= e.streakMinUnits {
		if SameDate(currentLast, closedDay.AddDate(0, 0, -1)) {
			targetDays = currentDays + 1
		} else {
			targetDays = 1
		}
	}

	return tx.SetAccountStreak(ref.UserID, targetDays, closedDay)
}

func streakAfter(a, b models.APIKey) bool {
	var aLast, bLast time.Time
	if a.StreakLastDate != nil {
		aLast = *a.StreakLastDate
	}
	if b.StreakLastDate != nil {
		bLast = *b.StreakLastDate
	}
	if !aLast.Equal(bLast) {
		return aLast.After(bLast)
	}
	return a.StreakDays > b.StreakDays
}

func tierNames(keys []models.APIKey) []string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Tier)
	}
	return names
}

// DateOf normalizes a timestamp to UTC midnight of its calendar date in
// the reference location.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
