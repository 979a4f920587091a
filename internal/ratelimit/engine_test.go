package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore commits a transaction's writes only when fn returns nil,
// mirroring the database rollback the engine relies on for rejections.
type memStore struct {
	ledgers map[uuid.UUID]models.UsageLedger
	keys    []models.APIKey
}

func newMemStore(keys ...models.APIKey) *memStore {
	return &memStore{
		ledgers: make(map[uuid.UUID]models.UsageLedger),
		keys:    keys,
	}
}

func (s *memStore) Transact(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{
		ledgers: make(map[uuid.UUID]models.UsageLedger, len(s.ledgers)),
		keys:    make([]models.APIKey, len(s.keys)),
	}
	for id, row := range s.ledgers {
		tx.ledgers[id] = row
	}
	copy(tx.keys, s.keys)

	if err := fn(tx); err != nil {
		return err
	}

	s.ledgers = tx.ledgers
	s.keys = tx.keys
	return nil
}

type memTx struct {
	ledgers map[uuid.UUID]models.UsageLedger
	keys    []models.APIKey
}

func (t *memTx) LedgerForUpdate(apiKeyID uuid.UUID) (*models.UsageLedger, error) {
	if row, ok := t.ledgers[apiKeyID]; ok {
		return &row, nil
	}
	return nil, nil
}

func (t *memTx) AccountLedgers(userID uuid.UUID) ([]models.UsageLedger, error) {
	var out []models.UsageLedger
	for _, row := range t.ledgers {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *memTx) SaveLedger(row *models.UsageLedger) error {
	t.ledgers[row.APIKeyID] = *row
	return nil
}

func (t *memTx) AccountKeys(userID uuid.UUID) ([]models.APIKey, error) {
	var out []models.APIKey
	for _, k := range t.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (t *memTx) TouchKey(apiKeyID uuid.UUID, at time.Time) error {
	for i := range t.keys {
		if t.keys[i].ID == apiKeyID {
			ts := at
			t.keys[i].LastUsedAt = &ts
		}
	}
	return nil
}

func (t *memTx) SetAccountStreak(userID uuid.UUID, days int, lastDate time.Time) error {
	for i := range t.keys {
		if t.keys[i].UserID == userID {
			t.keys[i].StreakDays = days
			d := lastDate
			t.keys[i].StreakLastDate = &d
		}
	}
	return nil
}

func (s *memStore) keyByID(id uuid.UUID) models.APIKey {
	for _, k := range s.keys {
		if k.ID == id {
			return k
		}
	}
	return models.APIKey{}
}

func newKey(userID uuid.UUID, tierName string) models.APIKey {
	return models.APIKey{
		ID:       uuid.New(),
		UserID:   userID,
		Tier:     tierName,
		IsActive: true,
	}
}

// Test clock anchored mid-day so minute math never crosses a day boundary
// by accident.
var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(store Store, now *time.Time) *Engine {
	return NewEngine(store, EngineConfig{
		Clock: func() time.Time { return *now },
	})
}

func TestRecordAndCheckFirstRequest(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)

	decision, err := engine.RecordAndCheck(context.Background(), &key, 10)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(10), decision.MinuteUsed)
	assert.Equal(t, int64(100), decision.MinuteCap)
	assert.Equal(t, int64(10), decision.DayUsed)
	assert.Equal(t, int64(500), decision.DayCap)
	assert.Equal(t, baseTime.Add(time.Minute), decision.WindowReset)

	row := store.ledgers[key.ID]
	assert.Equal(t, int64(10), row.MinuteCount)
	assert.Equal(t, int64(10), row.DayCount)
	require.NotNil(t, store.keyByID(key.ID).LastUsedAt)
}

func TestRecordAndCheckMinuteCapExactFit(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		decision, err := engine.RecordAndCheck(ctx, &key, 10)
		require.NoError(t, err, "charge %d should fit", i+1)
		require.True(t, decision.Allowed)
	}

	decision, err := engine.RecordAndCheck(ctx, &key, 10)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.NotNil(t, decision)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(100), decision.MinuteUsed)

	// The rejected charge must leave the ledger untouched.
	assert.Equal(t, int64(100), store.ledgers[key.ID].MinuteCount)
}

func TestRecordAndCheckFractionalUnits(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := NewEngine(store, EngineConfig{
		Policy: tier.NewPolicy([]tier.Spec{
			{Name: "tier1", Label: "Tier 1", Minute: 10, Daily: 10},
		}),
		Clock: func() time.Time { return now },
	})
	ctx := context.Background()

	// 14 charges at 7 units each fill 98 of the 100-unit caps; a 15th
	// would land on 105 and must bounce off both.
	units := tier.ScaleCost(0.7)
	require.Equal(t, int64(7), units)

	for i := 0; i < 14; i++ {
		_, err := engine.RecordAndCheck(ctx, &key, units)
		require.NoError(t, err)
	}

	decision, err := engine.RecordAndCheck(ctx, &key, units)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(98), decision.MinuteUsed)
	assert.Equal(t, int64(98), store.ledgers[key.ID].MinuteCount)
	assert.Equal(t, int64(98), store.ledgers[key.ID].DayCount)
}

func TestRecordAndCheckMinuteRollover(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	_, err := engine.RecordAndCheck(ctx, &key, 100)
	require.NoError(t, err)

	_, err = engine.RecordAndCheck(ctx, &key, 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	now = now.Add(time.Minute)

	decision, err := engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), decision.MinuteUsed, "minute counter resets on a new window")
	assert.Equal(t, int64(110), decision.DayUsed, "day counter carries across windows")
}

func TestRecordAndCheckDailyCap(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	// Five full minutes at the minute cap exhaust the 500-unit day cap.
	for i := 0; i < 5; i++ {
		_, err := engine.RecordAndCheck(ctx, &key, 100)
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}

	decision, err := engine.RecordAndCheck(ctx, &key, 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(0), decision.MinuteUsed, "fresh window")
	assert.Equal(t, int64(500), decision.DayUsed)
}

func TestRecordAndCheckAccountAggregation(t *testing.T) {
	userID := uuid.New()
	keyA := newKey(userID, "tier1")
	keyB := newKey(userID, "tier1")
	store := newMemStore(keyA, keyB)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	_, err := engine.RecordAndCheck(ctx, &keyA, 60)
	require.NoError(t, err)

	// Sibling usage counts against the shared minute cap.
	decision, err := engine.RecordAndCheck(ctx, &keyB, 50)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(60), decision.MinuteUsed)

	decision, err = engine.RecordAndCheck(ctx, &keyB, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(100), decision.MinuteUsed)

	// Each key keeps its own ledger row.
	assert.Equal(t, int64(60), store.ledgers[keyA.ID].MinuteCount)
	assert.Equal(t, int64(40), store.ledgers[keyB.ID].MinuteCount)
}

func TestRecordAndCheckHighestTierApplies(t *testing.T) {
	userID := uuid.New()
	keyA := newKey(userID, "tier1")
	keyB := newKey(userID, "tier2")
	store := newMemStore(keyA, keyB)
	now := baseTime
	engine := newTestEngine(store, &now)

	// The tier1 key inherits the account's best caps.
	decision, err := engine.RecordAndCheck(context.Background(), &keyA, 120)
	require.NoError(t, err)
	assert.Equal(t, "tier2", decision.Tier.Name)
	assert.Equal(t, int64(150), decision.MinuteCap)
	assert.Equal(t, int64(1000), decision.DayCap)
}

func TestRecordAndCheckMinimumCharge(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)

	decision, err := engine.RecordAndCheck(context.Background(), &key, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), decision.MinuteUsed)
}

func TestDayRolloverStartsStreak(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	// 60 units today clears the 50-unit streak threshold.
	_, err := engine.RecordAndCheck(ctx, &key, 60)
	require.NoError(t, err)

	yesterday := DateOf(now, time.UTC)
	now = now.AddDate(0, 0, 1)

	decision, err := engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), decision.DayUsed, "day counter resets on rollover")

	got := store.keyByID(key.ID)
	assert.Equal(t, 1, got.StreakDays)
	require.NotNil(t, got.StreakLastDate)
	assert.True(t, SameDate(*got.StreakLastDate, yesterday))
}

func TestDayRolloverBelowThresholdResetsStreak(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	key.StreakDays = 3
	twoDaysAgo := DateOf(baseTime, time.UTC).AddDate(0, 0, -2)
	key.StreakLastDate = &twoDaysAgo
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	// Only 10 units today, under the streak threshold.
	_, err := engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)

	now = now.AddDate(0, 0, 1)

	_, err = engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)

	got := store.keyByID(key.ID)
	assert.Equal(t, 0, got.StreakDays)
}

func TestDayRolloverExtendsConsecutiveStreak(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	key.StreakDays = 2
	prev := DateOf(baseTime, time.UTC).AddDate(0, 0, -1)
	key.StreakLastDate = &prev
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	_, err := engine.RecordAndCheck(ctx, &key, 60)
	require.NoError(t, err)

	now = now.AddDate(0, 0, 1)

	_, err = engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)

	got := store.keyByID(key.ID)
	assert.Equal(t, 3, got.StreakDays)
}

func TestRejectionRollsBackDayRollover(t *testing.T) {
	userID := uuid.New()
	keyA := newKey(userID, "tier1")
	keyB := newKey(userID, "tier1")
	store := newMemStore(keyA, keyB)
	now := baseTime

	yesterday := DateOf(now, time.UTC).AddDate(0, 0, -1)
	store.ledgers[keyA.ID] = models.UsageLedger{
		APIKeyID:          keyA.ID,
		UserID:            userID,
		MinuteWindowStart: now.Add(-time.Hour).Truncate(time.Minute),
		MinuteCount:       20,
		Day:               yesterday,
		DayCount:          60,
	}
	// Sibling saturates the current minute window so the charge must fail.
	store.ledgers[keyB.ID] = models.UsageLedger{
		APIKeyID:          keyB.ID,
		UserID:            userID,
		MinuteWindowStart: now.Truncate(time.Minute),
		MinuteCount:       100,
		Day:               DateOf(now, time.UTC),
		DayCount:          100,
	}

	engine := newTestEngine(store, &now)

	_, err := engine.RecordAndCheck(context.Background(), &keyA, 10)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// The rejected transaction rolled back both the ledger rollover and
	// the streak fold it would have carried.
	row := store.ledgers[keyA.ID]
	assert.True(t, SameDate(row.Day, yesterday))
	assert.Equal(t, int64(60), row.DayCount)
	assert.Equal(t, 0, store.keyByID(keyA.ID).StreakDays)
	assert.Nil(t, store.keyByID(keyA.ID).StreakLastDate)
}

func TestRecordAndCheckIdempotentRollover(t *testing.T) {
	userID := uuid.New()
	key := newKey(userID, "tier1")
	store := newMemStore(key)
	now := baseTime
	engine := newTestEngine(store, &now)
	ctx := context.Background()

	_, err := engine.RecordAndCheck(ctx, &key, 30)
	require.NoError(t, err)

	now = now.AddDate(0, 0, 1)

	// Two charges on the new day roll over exactly once.
	_, err = engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)
	decision, err := engine.RecordAndCheck(ctx, &key, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(20), decision.DayUsed)
}
