package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"price-alerts/internal/asset"
	"price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig          `mapstructure:"app"`
	Logging   logging.Config     `mapstructure:"logging"`
	Database  DatabaseConfig     `mapstructure:"database"`
	Redis     RedisConfig        `mapstructure:"redis"`
	Scheduler SchedulerConfig    `mapstructure:"scheduler"`
	History   HistoryConfig      `mapstructure:"history"`
	Providers ProvidersConfig    `mapstructure:"providers"`
	Gold      GoldConfig         `mapstructure:"gold"`
	FX        FXConfig           `mapstructure:"fx"`
	Ethereum  EthereumConfig     `mapstructure:"ethereum"`
	Alerting  AlertingConfig     `mapstructure:"alerting"`
	HTTP      HTTPConfig         `mapstructure:"http"`
	Export    ExportConfig       `mapstructure:"export"`
	Catalog   CatalogConfig      `mapstructure:"catalog"`
	Assets    []asset.Descriptor `mapstructure:"assets"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig enables persistence of the gold and FX cache entries.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs cycle cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	// Cron, when set, replaces Interval with a standard 5-field cron expression.
	Cron            string        `mapstructure:"cron"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Concurrency     int           `mapstructure:"concurrency"`
	AssetTimeout    time.Duration `mapstructure:"asset_timeout"`
}

// HistoryConfig controls retention.
type HistoryConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// ProviderConfig holds per-provider overrides.
type ProviderConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// ProvidersConfig configures the upstream price sources.
type ProvidersConfig struct {
	Timeout       time.Duration  `mapstructure:"timeout"`
	UserAgent     string         `mapstructure:"user_agent"`
	Delay         time.Duration  `mapstructure:"delay"`
	Binance       ProviderConfig `mapstructure:"binance"`
	CoinPaprika   ProviderConfig `mapstructure:"coinpaprika"`
	CryptoCompare ProviderConfig `mapstructure:"cryptocompare"`
	CoinGecko     ProviderConfig `mapstructure:"coingecko"`
	MetalPrice    ProviderConfig `mapstructure:"metalprice"`
	AlphaVantage  ProviderConfig `mapstructure:"alphavantage"`
}

// GoldConfig configures the commodity cache.
type GoldConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// CoinGeckoScale converts CoinGecko's gold quote into the 10 g unit.
	CoinGeckoScale float64 `mapstructure:"coingecko_scale"`
}

// FXConfig configures the USD->INR cache.
type FXConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	TTL         time.Duration `mapstructure:"ttl"`
	DefaultRate float64       `mapstructure:"default_rate"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EthereumConfig covers Chainlink feed access.
type EthereumConfig struct {
	RPCURL         string            `mapstructure:"rpc_url"`
	Feeds          map[string]string `mapstructure:"feeds"`
	MaxAge         time.Duration     `mapstructure:"max_age"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Transport     string         `mapstructure:"transport"`
	From          string         `mapstructure:"from"`
	SendTimeout   time.Duration  `mapstructure:"send_timeout"`
	RecordTimeout time.Duration  `mapstructure:"record_timeout"`
	SMTP          SMTPConfig     `mapstructure:"smtp"`
	SES           SESConfig      `mapstructure:"ses"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// SMTPConfig describes an SMTP relay (Gmail by default).
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SESConfig selects the AWS region/profile for SES.
type SESConfig struct {
	Region           string `mapstructure:"region"`
	ConfigurationSet string `mapstructure:"configuration_set"`
}

// TelegramConfig describes the optional ops mirror channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// HTTPConfig controls the read-only API.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// CatalogConfig tunes asset detail refreshes and favorite rankings.
type CatalogConfig struct {
	// RefreshDelay spaces consecutive detail fetches to stay under upstream quotas.
	RefreshDelay time.Duration `mapstructure:"refresh_delay"`
	PopularLimit int           `mapstructure:"popular_limit"`
}

// Transport names.
const (
	TransportSMTP    = "smtp"
	TransportSES     = "ses"
	TransportConsole = "console"
)

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = asset.Defaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv accepts the variable names older deployments used.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.dsn":                    {"PRICEWATCH_DATABASE_DSN", "DATABASE_URL"},
		"redis.url":                       {"PRICEWATCH_REDIS_URL", "REDIS_URL"},
		"providers.metalprice.api_key":    {"PRICEWATCH_PROVIDERS_METALPRICE_API_KEY", "METALPRICEAPI_KEY"},
		"providers.alphavantage.api_key":  {"PRICEWATCH_PROVIDERS_ALPHAVANTAGE_API_KEY", "ALPHAVANTAGE_API_KEY"},
		"providers.coingecko.api_key":     {"PRICEWATCH_PROVIDERS_COINGECKO_API_KEY", "COINGECKO_API_KEY"},
		"providers.cryptocompare.api_key": {"PRICEWATCH_PROVIDERS_CRYPTOCOMPARE_API_KEY", "CRYPTOCOMPARE_API_KEY"},
		"alerting.smtp.username":          {"PRICEWATCH_ALERTING_SMTP_USERNAME", "GMAIL_USER"},
		"alerting.smtp.password":          {"PRICEWATCH_ALERTING_SMTP_PASSWORD", "GMAIL_APP_PASSWORD"},
		"ethereum.rpc_url":                {"PRICEWATCH_ETHEREUM_RPC_URL", "ETH_RPC_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "pricewatch:")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70726963))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.asset_timeout", "90s")

	v.SetDefault("history.retention", "2160h")

	v.SetDefault("providers.timeout", "10s")
	v.SetDefault("providers.user_agent", "Trading-Notification-App/1.0")
	v.SetDefault("providers.delay", "300ms")
	v.SetDefault("providers.binance.base_url", "https://api.binance.com")
	v.SetDefault("providers.binance.rate_limit", 10.0)
	v.SetDefault("providers.binance.burst", 5)
	v.SetDefault("providers.coinpaprika.base_url", "https://api.coinpaprika.com")
	v.SetDefault("providers.coinpaprika.rate_limit", 2.0)
	v.SetDefault("providers.coinpaprika.burst", 3)
	v.SetDefault("providers.cryptocompare.base_url", "https://min-api.cryptocompare.com")
	v.SetDefault("providers.cryptocompare.rate_limit", 5.0)
	v.SetDefault("providers.cryptocompare.burst", 3)
	v.SetDefault("providers.coingecko.base_url", "https://api.coingecko.com")
	v.SetDefault("providers.coingecko.rate_limit", 0.5)
	v.SetDefault("providers.coingecko.burst", 2)
	v.SetDefault("providers.metalprice.base_url", "https://api.metalpriceapi.com")
	v.SetDefault("providers.metalprice.timeout", "15s")
	v.SetDefault("providers.alphavantage.base_url", "https://www.alphavantage.co")

	v.SetDefault("gold.ttl", "24h")
	v.SetDefault("gold.coingecko_scale", 10.0)

	v.SetDefault("fx.base_url", "https://api.exchangerate-api.com")
	v.SetDefault("fx.ttl", "1h")
	v.SetDefault("fx.default_rate", 83.0)
	v.SetDefault("fx.timeout", "10s")

	v.SetDefault("ethereum.request_timeout", "10s")
	v.SetDefault("ethereum.max_age", "26h")
	v.SetDefault("ethereum.feeds", map[string]string{
		"XAU":  "0x214eD9Da11D2fbe465a6fc601a91E62EbEc1a0D6",
		"BTC":  "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
		"ETH":  "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
		"LINK": "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c",
	})

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.transport", TransportSMTP)
	v.SetDefault("alerting.send_timeout", "20s")
	v.SetDefault("alerting.record_timeout", "5s")
	v.SetDefault("alerting.smtp.host", "smtp.gmail.com")
	v.SetDefault("alerting.smtp.port", 587)
	v.SetDefault("alerting.ses.region", "us-east-1")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.listen", ":8080")

	v.SetDefault("export.max_data_points", 5000)

	v.SetDefault("catalog.refresh_delay", "2s")
	v.SetDefault("catalog.popular_limit", 10)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// stringToDecimalHookFunc decodes numbers and numeric strings into decimal.Decimal.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.History.Retention <= 0 {
		return fmt.Errorf("history.retention must be greater than zero")
	}
	if c.Gold.TTL <= 0 {
		return fmt.Errorf("gold.ttl must be greater than zero")
	}
	if c.FX.DefaultRate <= 0 {
		return fmt.Errorf("fx.default_rate must be greater than zero")
	}
	if c.Providers.Delay < 0 {
		return fmt.Errorf("providers.delay cannot be negative")
	}
	if c.Catalog.RefreshDelay < 0 {
		return fmt.Errorf("catalog.refresh_delay cannot be negative")
	}
	if _, err := asset.NewRegistry(c.Assets); err != nil {
		return fmt.Errorf("assets: %w", err)
	}

	switch c.Alerting.Transport {
	case TransportSMTP, TransportSES, TransportConsole:
	default:
		return fmt.Errorf("alerting.transport must be one of smtp, ses, console")
	}
	if c.Alerting.Transport == TransportSES && c.Alerting.From == "" {
		return fmt.Errorf("alerting.from is required for the ses transport")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// SMTPConfigured reports whether SMTP credentials are present.
func (c *Config) SMTPConfigured() bool {
	return c.Alerting.SMTP.Username != "" && c.Alerting.SMTP.Password != ""
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
