package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alerts/internal/asset"
	"price-alerts/internal/history"
	"price-alerts/internal/pricing"
	"price-alerts/internal/service"
	"price-alerts/internal/storage"
)

type mockBackend struct {
	snap       *pricing.Snapshot
	last       *service.CycleReport
	rows       []storage.PriceRow
	historyErr error
	gotWindow  time.Duration
	gotLimit   int
}

func (m *mockBackend) CurrentSnapshot() *pricing.Snapshot { return m.snap }

func (m *mockBackend) LastCycle() (service.CycleReport, bool) {
	if m.last == nil {
		return service.CycleReport{}, false
	}
	return *m.last, true
}

func (m *mockBackend) History(_ context.Context, _ string, window time.Duration, limit int) ([]storage.PriceRow, error) {
	m.gotWindow = window
	m.gotLimit = limit
	return m.rows, m.historyErr
}

func (m *mockBackend) Stats(_ context.Context, symbol string, window time.Duration) (history.Summary, error) {
	m.gotWindow = window
	if m.historyErr != nil {
		return history.Summary{}, m.historyErr
	}
	return history.Summarize(symbol, m.rows)
}

var at = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, backend *mockBackend) *Server {
	t.Helper()
	reg, err := asset.NewRegistry(asset.Defaults())
	require.NoError(t, err)
	return NewServer(NewHandler(backend, reg, zerolog.Nop()), ServerOptions{}, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest("GET", path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func TestHealthBeforeAndAfterFirstCycle(t *testing.T) {
	backend := &mockBackend{}
	s := newTestServer(t, backend)

	code, body := get(t, s, "/healthz")
	assert.Equal(t, 503, code)
	assert.Equal(t, "starting", body["status"])
	assert.Equal(t, "dev", body["build"].(map[string]any)["version"])

	backend.last = &service.CycleReport{ID: "c1", Degraded: []string{"GOLD"}}
	code, body = get(t, s, "/healthz")
	assert.Equal(t, 200, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestAssetsListsRegistry(t *testing.T) {
	code, body := get(t, newTestServer(t, &mockBackend{}), "/api/assets")
	assert.Equal(t, 200, code)
	assets := body["assets"].([]any)
	assert.Len(t, assets, 10)
}

func TestCurrentPrices(t *testing.T) {
	backend := &mockBackend{}
	s := newTestServer(t, backend)

	code, _ := get(t, s, "/api/prices/current")
	assert.Equal(t, 503, code)

	backend.snap = &pricing.Snapshot{TakenAt: at, Quotes: map[string]pricing.Quote{
		"BTC": {Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Price: decimal.NewFromInt(65000), Timestamp: at, Source: "binance", Origin: pricing.OriginLive},
	}}
	code, body := get(t, s, "/api/prices/current")
	assert.Equal(t, 200, code)
	prices := body["prices"].([]any)
	require.Len(t, prices, 1)
	assert.Equal(t, "BTC", prices[0].(map[string]any)["symbol"])

	code, body = get(t, s, "/api/prices/current/btc")
	assert.Equal(t, 200, code)
	assert.Equal(t, "65000", body["price"])

	code, _ = get(t, s, "/api/prices/current/eth")
	assert.Equal(t, 503, code)

	code, body = get(t, s, "/api/prices/current/doge")
	assert.Equal(t, 404, code)
	assert.Contains(t, body["error"], "DOGE")
}

func TestPriceHistoryQueryParams(t *testing.T) {
	backend := &mockBackend{rows: []storage.PriceRow{
		{Symbol: "ETH", Price: decimal.NewFromInt(3000), Source: "binance", Origin: "live", RecordedAt: at},
	}}
	s := newTestServer(t, backend)

	code, body := get(t, s, "/api/prices/history/ETH")
	assert.Equal(t, 200, code)
	assert.Equal(t, 7*24*time.Hour, backend.gotWindow)
	assert.Equal(t, defaultHistoryLimit, backend.gotLimit)
	assert.Len(t, body["points"].([]any), 1)

	_, _ = get(t, s, "/api/prices/history/ETH?days=365&limit=10")
	assert.Equal(t, 90*24*time.Hour, backend.gotWindow)
	assert.Equal(t, 10, backend.gotLimit)

	backend.historyErr = service.ErrHistoryDisabled
	code, _ = get(t, s, "/api/prices/history/ETH")
	assert.Equal(t, 501, code)
}

func TestPriceStats(t *testing.T) {
	backend := &mockBackend{rows: []storage.PriceRow{
		{Symbol: "ETH", Price: decimal.NewFromInt(100), RecordedAt: at},
		{Symbol: "ETH", Price: decimal.NewFromInt(150), RecordedAt: at.Add(time.Hour)},
	}}
	s := newTestServer(t, backend)

	code, body := get(t, s, "/api/prices/stats/eth?days=3")
	assert.Equal(t, 200, code)
	assert.Equal(t, 3*24*time.Hour, backend.gotWindow)
	assert.Equal(t, "50", body["change_percent"])

	backend.rows = nil
	code, _ = get(t, s, "/api/prices/stats/eth")
	assert.Equal(t, 404, code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &mockBackend{})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
