package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, 90*24*time.Hour, cfg.History.Retention)
	assert.Equal(t, 24*time.Hour, cfg.Gold.TTL)
	assert.Equal(t, time.Hour, cfg.FX.TTL)
	assert.Equal(t, 300*time.Millisecond, cfg.Providers.Delay)
	assert.Len(t, cfg.Assets, 10)
	assert.Equal(t, TransportSMTP, cfg.Alerting.Transport)
	assert.Equal(t, 5*time.Second, cfg.Alerting.RecordTimeout)
	assert.Len(t, cfg.Ethereum.Feeds, 4)
	assert.Equal(t, 2*time.Second, cfg.Catalog.RefreshDelay)
	assert.Equal(t, 10, cfg.Catalog.PopularLimit)
}

func TestLoadFileAndLegacyEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	yaml := `
scheduler:
  interval: 1m
  cron: "*/2 * * * *"
alerting:
  transport: console
assets:
  - symbol: btc
    name: Bitcoin
    currency: usd
    category: crypto
    providers: [binance, coingecko]
    refs:
      coingecko: bitcoin
    fallback: "45000.5"
    profile:
      website: https://bitcoin.org
      launch_date: "2009-01-03"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("METALPRICEAPI_KEY", "legacy-key")
	t.Setenv("GMAIL_USER", "bot@example.com")
	t.Setenv("GMAIL_APP_PASSWORD", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "*/2 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, "legacy-key", cfg.Providers.MetalPrice.APIKey)
	assert.True(t, cfg.SMTPConfigured())
	require.Len(t, cfg.Assets, 1)
	assert.True(t, cfg.Assets[0].Fallback.Equal(decimal.RequireFromString("45000.5")))
	assert.Equal(t, "bitcoin", cfg.Assets[0].Refs["coingecko"])
	assert.Equal(t, "https://bitcoin.org", cfg.Assets[0].Profile.Website)
	assert.Equal(t, "2009-01-03", cfg.Assets[0].Profile.LaunchDate)
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Alerting.Transport = "pigeon"
	assert.Error(t, cfg.Validate())

	cfg.Alerting.Transport = TransportSES
	cfg.Alerting.From = ""
	assert.Error(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	assert.Equal(t, 10, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 3, cfg.ResolveMaxPoints(3))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
