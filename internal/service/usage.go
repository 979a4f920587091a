package service

import (
	"context"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/ratelimit"
	"github.com/dimicheck/public-api/internal/repository"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/google/uuid"
)

// Per-key usage snapshot for the developer dashboard. Counts are scaled
// units; stale windows read as zero without being reset.
type KeyUsage struct {
	ID                uuid.UUID  `json:"id"`
	Label             string     `json:"label"`
	IsActive          bool       `json:"is_active"`
	Tier              string     `json:"tier"`
	TierLabel         string     `json:"tier_label"`
	MinuteCount       int64      `json:"minute_count"`
	MinuteLimit       int64      `json:"minute_limit"`
	MinuteWindowStart *time.Time `json:"minute_window_start,omitempty"`
	DayCount          int64      `json:"day_count"`
	DailyLimit        int64      `json:"daily_limit"`
	Day               string     `json:"day"`
	StreakDays        int        `json:"streak_days"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	UpgradedAt        *time.Time `json:"tier_upgraded_at,omitempty"`
}

// Account-aggregate usage against the shared caps.
type AccountUsage struct {
	Tier              string         `json:"tier"`
	TierLabel         string         `json:"tier_label"`
	MinuteCount       int64          `json:"minute_count"`
	MinuteLimit       int64          `json:"minute_limit"`
	MinuteWindowStart time.Time      `json:"minute_window_start"`
	DayCount          int64          `json:"day_count"`
	DailyLimit        int64          `json:"daily_limit"`
	Day               string         `json:"day"`
	StreakDays        int            `json:"streak_days"`
	StreakLastDate    *string        `json:"streak_last_date,omitempty"`
	Eligibility       *tier.Progress `json:"eligibility"`
}

type UsageSummary struct {
	TotalKeys int          `json:"total_keys"`
	Account   AccountUsage `json:"account"`
	Keys      []KeyUsage   `json:"keys"`
	Tiers     []tier.Tier  `json:"tiers"`
}

// UsageService is the read-only reporting surface; it never charges the
// ledger.
type UsageService struct {
	keys      *repository.APIKeyRepository
	policy    *tier.Policy
	evaluator *tier.EligibilityEvaluator
	loc       *time.Location
	now       ratelimit.Clock
}

func NewUsageService(keys *repository.APIKeyRepository, policy *tier.Policy, evaluator *tier.EligibilityEvaluator, loc *time.Location, now ratelimit.Clock) *UsageService {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &UsageService{keys: keys, policy: policy, evaluator: evaluator, loc: loc, now: now}
}

func (s *UsageService) Summary(ctx context.Context, userID uuid.UUID) (*UsageSummary, error) {
	keys, err := s.keys.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ledgers, err := s.keys.LedgersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[uuid.UUID]*models.UsageLedger, len(ledgers))
	for i := range ledgers {
		byKey[ledgers[i].APIKeyID] = &ledgers[i]
	}

	now := s.now()
	minuteWindow := now.Truncate(time.Minute)
	today := ratelimit.DateOf(now, s.loc)

	snapshots := make([]KeyUsage, 0, len(keys))
	for _, key := range keys {
		snapshots = append(snapshots, s.snapshot(key, byKey[key.ID], minuteWindow, today))
	}

	aggMinute, aggDay := ratelimit.AggregateUsage(ledgers, minuteWindow, today)
	accountTier := s.policy.Highest(keyTierNames(keys))

	progress, err := s.evaluator.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}

	account := AccountUsage{
		Tier:              accountTier.Name,
		TierLabel:         accountTier.Label,
		MinuteCount:       aggMinute,
		MinuteLimit:       accountTier.MinuteCap,
		MinuteWindowStart: minuteWindow,
		DayCount:          aggDay,
		DailyLimit:        accountTier.DailyCap,
		Day:               today.Format("2006-01-02"),
		Eligibility:       progress,
	}

	for _, key := range keys {
		if key.StreakDays > account.StreakDays {
			account.StreakDays = key.StreakDays
		}
		if key.StreakLastDate != nil {
			formatted := key.StreakLastDate.Format("2006-01-02")
			if account.StreakLastDate == nil || formatted > *account.StreakLastDate {
				account.StreakLastDate = &formatted
			}
		}
	}

	return &UsageSummary{
		TotalKeys: len(keys),
		Account:   account,
		Keys:      snapshots,
		Tiers:     s.policy.Catalog(),
	}, nil
}

// Snapshot for one key; per-key limits use the key's own tier, matching
// what the key would see if it were the account's only credential.
func (s *UsageService) snapshot(key models.APIKey, ledger *models.UsageLedger, minuteWindow, today time.Time) KeyUsage {
	t := s.policy.Lookup(key.Tier)

	usage := KeyUsage{
		ID:          key.ID,
		Label:       key.Label,
		IsActive:    key.IsActive,
		Tier:        t.Name,
		TierLabel:   t.Label,
		MinuteLimit: t.MinuteCap,
		DailyLimit:  t.DailyCap,
		Day:         today.Format("2006-01-02"),
		StreakDays:  key.StreakDays,
		CreatedAt:   key.CreatedAt,
		LastUsedAt:  key.LastUsedAt,
		UpgradedAt:  key.TierUpgradedAt,
	}

	if ledger == nil {
		return usage
	}

	windowStart := ledger.MinuteWindowStart
	usage.MinuteWindowStart = &windowStart
	if windowStart.Equal(minuteWindow) {
		usage.MinuteCount = ledger.MinuteCount
	}
	if ratelimit.SameDate(ledger.Day, today) {
		usage.DayCount = ledger.DayCount
		usage.Day = ledger.Day.Format("2006-01-02")
	}

	return usage
}

func keyTierNames(keys []models.APIKey) []string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Tier)
	}
	return names
}
