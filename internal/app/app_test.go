package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alerts/internal/alerting"
	"price-alerts/internal/asset"
	"price-alerts/internal/config"
	"price-alerts/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Assets:    asset.Defaults(),
		Scheduler: config.SchedulerConfig{Interval: 5 * time.Minute, Concurrency: 2, AssetTimeout: 5 * time.Second},
		History:   config.HistoryConfig{Retention: 90 * 24 * time.Hour},
		Gold:      config.GoldConfig{TTL: 24 * time.Hour, CoinGeckoScale: 10},
		FX:        config.FXConfig{TTL: time.Hour, DefaultRate: 83},
		Providers: config.ProvidersConfig{Timeout: time.Second, UserAgent: "test"},
		Alerting:  config.AlertingConfig{Enabled: true, Transport: config.TransportSMTP},
		Export:    config.ExportConfig{MaxDataPoints: 100},
	}
}

func newTestApp(cfg *config.Config) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestCheckPrintsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000.10000000"}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Assets = []asset.Descriptor{{
		Symbol:    "BTC",
		Name:      "Bitcoin",
		Currency:  "USD",
		Category:  asset.CategoryCrypto,
		Providers: []string{asset.ProviderBinance},
		Fallback:  decimal.NewFromInt(45000),
	}}
	cfg.Providers.Binance.BaseURL = srv.URL

	a, out := newTestApp(cfg)
	require.NoError(t, a.Check(context.Background(), CheckOptions{}))
	assert.Contains(t, out.String(), "BTC")
	assert.Contains(t, out.String(), "65000.1")
	assert.Contains(t, out.String(), "binance")
	assert.NotContains(t, out.String(), "fallback")
	assert.Contains(t, out.String(), "cache usd/inr:")
	assert.Contains(t, out.String(), "cache gold:")
}

func TestCheckJSONIncludesCaches(t *testing.T) {
	cfg := testConfig()
	cfg.Assets = []asset.Descriptor{{
		Symbol:    "BTC",
		Name:      "Bitcoin",
		Currency:  "USD",
		Category:  asset.CategoryCrypto,
		Providers: []string{asset.ProviderBinance},
		Fallback:  decimal.NewFromInt(45000),
	}}
	cfg.Providers.Binance.BaseURL = "http://127.0.0.1:1"

	a, out := newTestApp(cfg)
	require.NoError(t, a.Check(context.Background(), CheckOptions{JSON: true}))

	var payload struct {
		Snapshot struct {
			Quotes map[string]struct {
				Origin string `json:"origin"`
			} `json:"quotes"`
		} `json:"snapshot"`
		Caches []struct {
			Name  string          `json:"name"`
			Entry json.RawMessage `json:"entry"`
		} `json:"caches"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	assert.Equal(t, "fallback", payload.Snapshot.Quotes["BTC"].Origin)
	require.Len(t, payload.Caches, 2)
	assert.Equal(t, "usd/inr", payload.Caches[0].Name)
	assert.Equal(t, "null", string(payload.Caches[0].Entry), "从未刷新过的缓存应为 null")
}

func TestNewSenderSelection(t *testing.T) {
	cfg := testConfig()
	a, _ := newTestApp(cfg)

	sender, err := a.newSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "console", sender.Name(), "缺少 SMTP 凭据时应退化为控制台")

	cfg.Alerting.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"}
	sender, err = a.newSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "smtp", sender.Name())

	cfg.Alerting.Transport = config.TransportConsole
	sender, err = a.newSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "console", sender.Name())

	assert.Nil(t, a.newMirror())
	cfg.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}
	assert.NotNil(t, a.newMirror())
}

func TestValidateAlert(t *testing.T) {
	a, _ := newTestApp(testConfig())

	rule, err := a.validateAlert(AlertInput{Symbol: " eth ", Threshold: decimal.NewFromInt(3000), Condition: "BELOW", Email: "me@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ETH", rule.Symbol)
	assert.Equal(t, storage.ConditionBelow, rule.Condition)
	assert.True(t, rule.Active)

	_, err = a.validateAlert(AlertInput{Symbol: "DOGE", Threshold: decimal.NewFromInt(1), Condition: "above", Email: "me@example.com"})
	assert.Error(t, err)
	_, err = a.validateAlert(AlertInput{Symbol: "BTC", Threshold: decimal.NewFromInt(1), Condition: "equal", Email: "me@example.com"})
	assert.Error(t, err)
	_, err = a.validateAlert(AlertInput{Symbol: "BTC", Threshold: decimal.Zero, Condition: "above", Email: "me@example.com"})
	assert.Error(t, err)
	_, err = a.validateAlert(AlertInput{Symbol: "BTC", Threshold: decimal.NewFromInt(1), Condition: "above", Email: "nobody"})
	assert.Error(t, err)
}

func TestSimulateAlertThroughConsole(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.Transport = config.TransportConsole
	a, out := newTestApp(cfg)

	err := a.SimulateAlert(context.Background(), SimulateOptions{
		AlertInput: AlertInput{Symbol: "GOLD", Threshold: decimal.NewFromInt(60000), Condition: "above", Email: "ops@example.com"},
		Price:      decimal.NewFromInt(63000),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "status: sent via console")
}

func TestSimulateAlertBelowThresholdSendsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.Transport = config.TransportConsole
	a, out := newTestApp(cfg)

	err := a.SimulateAlert(context.Background(), SimulateOptions{
		AlertInput: AlertInput{Symbol: "btc", Threshold: decimal.NewFromInt(70000), Condition: "above", Email: "ops@example.com"},
		Price:      decimal.NewFromInt(70000),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "not triggered: BTC above 70000 at 70000")
	assert.NotContains(t, out.String(), "status:")
}

func TestCommandsRequireDatabase(t *testing.T) {
	a, _ := newTestApp(testConfig())
	ctx := context.Background()

	assert.ErrorContains(t, a.Show(ctx, ShowOptions{Limit: 5}), "database not configured")
	assert.ErrorContains(t, a.ListAlerts(ctx, 5), "database not configured")
	assert.ErrorContains(t, a.Export(ctx, ExportOptions{Symbol: "BTC", CSVPath: "x.csv"}), "database not configured")
	assert.ErrorContains(t, a.Export(ctx, ExportOptions{Symbol: "BTC"}), "--csv or --png")
	assert.ErrorContains(t, a.RefreshAssets(ctx, ""), "database not configured")
	assert.ErrorContains(t, a.AddFavorite(ctx, 1, "BTC"), "database not configured")
	assert.ErrorContains(t, a.PopularAssets(ctx, 5), "database not configured")
}

func TestCatalogWithoutStoreServesProfiles(t *testing.T) {
	a, _ := newTestApp(testConfig())
	reg, err := asset.NewRegistry(a.Config.Assets)
	require.NoError(t, err)

	details, favorites := a.newCatalog(reg, nil)
	card, err := details.Get(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, "https://ethereum.org", card.Website)

	_, err = favorites.List(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

type fakeHistorical struct {
	fail map[string]bool
}

func (f fakeHistorical) FetchOn(_ context.Context, _ asset.Descriptor, day time.Time) (decimal.Decimal, error) {
	if f.fail[day.Format("2006-01-02")] {
		return decimal.Decimal{}, errors.New("no data")
	}
	return decimal.NewFromInt(2000), nil
}

func TestCollectBackfill(t *testing.T) {
	a, _ := newTestApp(testConfig())
	gold := asset.Defaults()[len(asset.Defaults())-1]
	require.Equal(t, asset.GoldSymbol, gold.Symbol)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	days := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)}
	convert := func(_ context.Context, p decimal.Decimal) (decimal.Decimal, error) {
		return p.Mul(decimal.NewFromInt(2)), nil
	}

	rows, failed := a.collectBackfill(context.Background(), fakeHistorical{fail: map[string]bool{"2024-01-02": true}}, convert, gold, days, 2)
	assert.Equal(t, 1, failed)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].RecordedAt.Equal(start))
	assert.True(t, rows[1].RecordedAt.Equal(days[2]))
	assert.True(t, rows[0].Price.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, "INR", rows[0].Currency)
	assert.Equal(t, backfillSource, rows[0].Source)
}

func TestAlignForward(t *testing.T) {
	day := 24 * time.Hour
	mid := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), alignForward(mid, day))
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, alignForward(midnight, day))
}

func sampleRows(n int) []storage.PriceRow {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]storage.PriceRow, n)
	for i := range rows {
		rows[i] = storage.PriceRow{
			Symbol:     "BTC",
			Name:       "Bitcoin",
			Currency:   "USD",
			Price:      decimal.NewFromInt(int64(60000 + i*10)),
			Source:     "binance",
			Origin:     "live",
			RecordedAt: start.Add(time.Duration(i) * 5 * time.Minute),
		}
	}
	return rows
}

func TestDownsampleRows(t *testing.T) {
	rows := sampleRows(100)
	out := downsampleRows(rows, 10)
	require.Len(t, out, 10)
	assert.Equal(t, rows[0], out[0])
	assert.Equal(t, rows[99], out[9])

	assert.Len(t, downsampleRows(rows, 0), 100)
	assert.Equal(t, []storage.PriceRow{rows[99]}, downsampleRows(rows, 1))
}

func TestWritePricesCSVAndPNG(t *testing.T) {
	dir := t.TempDir()
	rows := sampleRows(5)

	csvPath := filepath.Join(dir, "out", "btc.csv")
	require.NoError(t, writePricesCSV(csvPath, rows))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	var back []csvRow
	require.NoError(t, gocsv.UnmarshalFile(f, &back))
	require.Len(t, back, 5)
	assert.Equal(t, "60040", back[4].Price)
	assert.Equal(t, "2024-02-01T00:00:00Z", back[0].RecordedAt)

	pngPath := filepath.Join(dir, "btc.png")
	require.NoError(t, writePricesPNG(pngPath, rows))
	raw, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\x89PNG")))

	assert.Error(t, writePricesPNG(pngPath, rows[:1]))
}

func TestPrintNotifications(t *testing.T) {
	a, out := newTestApp(testConfig())
	msg := "535 auth\nfailed"
	id := int64(4)
	require.NoError(t, a.printNotifications([]storage.NotificationRecord{
		{AlertID: &id, Symbol: "ETH", Condition: storage.ConditionBelow, Threshold: decimal.NewFromInt(3000), Price: decimal.NewFromInt(2950), Status: storage.StatusFailed, Transport: "smtp", Error: &msg},
		{Symbol: "BTC", Condition: storage.ConditionAbove, Status: storage.StatusSent, Transport: "console"},
	}))
	text := out.String()
	assert.Contains(t, text, "535 auth failed")
	assert.Equal(t, 3, strings.Count(text, "\n"))
	assert.Contains(t, text, " - ")
}

var _ alerting.Sender = (*alerting.ConsoleSender)(nil)
