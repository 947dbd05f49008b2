package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alerts/internal/config"
)

// Runs against a disposable database with every file in migrations/ applied.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PRICEWATCH_TEST_DSN")
	if dsn == "" {
		t.Skip("PRICEWATCH_TEST_DSN not set")
	}
	pool, err := NewPool(context.Background(), config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4}, "pricewatch-test")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `TRUNCATE price_history, notifications, alerts, asset_details, favorites RESTART IDENTITY`)
	require.NoError(t, err)
	return NewStore(pool)
}

func TestStoreWithoutPool(t *testing.T) {
	var s *Store
	_, err := s.ListActiveAlerts(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, NewStore(nil).InsertPrices(context.Background(), []PriceRow{{Symbol: "BTC"}}), ErrNotConfigured)
}

func TestNewPoolRequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{}, "pricewatch")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPriceHistoryAppendAndPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rows := []PriceRow{
		{Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Price: decimal.NewFromInt(65000), Source: "binance", Origin: "live", RecordedAt: now.Add(-100 * 24 * time.Hour)},
		{Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Price: decimal.NewFromInt(66000), Source: "binance", Origin: "live", RecordedAt: now.Add(-time.Hour)},
		{Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Price: decimal.NewFromInt(67000), Source: "binance", Origin: "live", RecordedAt: now},
	}
	require.NoError(t, s.InsertPrices(ctx, rows))

	pruned, err := s.PrunePricesBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	got, err := s.ListPricesBetween(ctx, "BTC", now.Add(-2*time.Hour), now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(66000)), "oldest first")

	all, err := s.ListPricesBetween(ctx, "BTC", now.Add(-2*time.Hour), now.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2, "zero limit returns the whole window")

	latest, err := s.LatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Price.Equal(decimal.NewFromInt(67000)))
}

func TestAlertDeactivateIsConditional(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rule, err := s.CreateAlert(ctx, AlertRule{Symbol: "ETH", Threshold: decimal.NewFromInt(3000), Condition: ConditionBelow, Email: "a@example.com"})
	require.NoError(t, err)

	ok, err := s.DeactivateAlert(ctx, rule.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeactivateAlert(ctx, rule.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second deactivation must be a no-op")

	active, err := s.ListActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.ReactivateAlert(ctx, rule.ID))
	assert.ErrorIs(t, s.ReactivateAlert(ctx, 999999), ErrAlertNotFound)
}

func TestNotificationForDeletedAlert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	missing := int64(424242)

	rec, err := s.InsertNotification(ctx, NotificationRecord{
		AlertID:   &missing,
		Symbol:    "ETH",
		AssetName: "Ethereum",
		Currency:  "USD",
		Threshold: decimal.NewFromInt(3000),
		Price:     decimal.NewFromInt(2950),
		Condition: ConditionBelow,
		Status:    StatusSent,
		Transport: "console",
		SentAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Nil(t, rec.AlertID)
	assert.NotZero(t, rec.ID)
}
