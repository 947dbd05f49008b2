package app

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"price-alerts/internal/alerting"
	"price-alerts/internal/api"
	"price-alerts/internal/asset"
	"price-alerts/internal/config"
	"price-alerts/internal/fetcher"
	"price-alerts/internal/history"
	"price-alerts/internal/pricing"
	"price-alerts/internal/scheduler"
	"price-alerts/internal/service"
	"price-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// engine is the acquisition pipeline shared by run, check and backfill.
type engine struct {
	registry   *asset.Registry
	builder    *pricing.SnapshotBuilder
	fx         *pricing.FXCache
	gold       *pricing.GoldCache
	metalPrice *fetcher.MetalPrice
}

func (a *App) httpOptions(pc config.ProviderConfig) fetcher.HTTPOptions {
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = a.Config.Providers.Timeout
	}
	return fetcher.HTTPOptions{
		BaseURL:   pc.BaseURL,
		APIKey:    pc.APIKey,
		Timeout:   timeout,
		UserAgent: a.Config.Providers.UserAgent,
	}
}

// newEngine wires providers, caches and the snapshot builder. cache may be nil.
func (a *App) newEngine(cache pricing.EntryStore) (*engine, error) {
	cfg := a.Config
	registry, err := asset.NewRegistry(cfg.Assets)
	if err != nil {
		return nil, err
	}

	pc := cfg.Providers
	limited := func(p fetcher.Provider, c config.ProviderConfig) fetcher.Provider {
		return fetcher.NewLimited(p, c.RateLimit, c.Burst)
	}
	coingecko := limited(fetcher.NewCoinGecko(a.httpOptions(pc.CoinGecko)), pc.CoinGecko)

	cryptoProviders := map[string]fetcher.Provider{
		asset.ProviderBinance:       limited(fetcher.NewBinance(a.httpOptions(pc.Binance)), pc.Binance),
		asset.ProviderCoinPaprika:   limited(fetcher.NewCoinPaprika(a.httpOptions(pc.CoinPaprika)), pc.CoinPaprika),
		asset.ProviderCryptoCompare: limited(fetcher.NewCryptoCompare(a.httpOptions(pc.CryptoCompare)), pc.CryptoCompare),
		asset.ProviderCoinGecko:     coingecko,
	}

	fxSource := fetcher.NewExchangeRate(fetcher.HTTPOptions{
		BaseURL:   cfg.FX.BaseURL,
		Timeout:   cfg.FX.Timeout,
		UserAgent: pc.UserAgent,
	}, "USD", "INR")
	fx := pricing.NewFXCache(fxSource, pricing.FXOptions{
		TTL:     cfg.FX.TTL,
		Default: decimal.NewFromFloat(cfg.FX.DefaultRate),
		Store:   cache,
	}, a.Logger)

	metalPrice := fetcher.NewMetalPrice(a.httpOptions(pc.MetalPrice))
	commodityProviders := map[string]fetcher.Provider{
		asset.ProviderMetalPrice:   fetcher.NewConverted(metalPrice, fetcher.OunceUSDToTenGramsINR(fx)),
		asset.ProviderAlphaVantage: fetcher.NewConverted(limited(fetcher.NewAlphaVantage(a.httpOptions(pc.AlphaVantage)), pc.AlphaVantage), fetcher.OunceToTenGrams),
		asset.ProviderCoinGecko:    fetcher.NewConverted(coingecko, fetcher.Scale(decimal.NewFromFloat(cfg.Gold.CoinGeckoScale))),
	}
	if cfg.Ethereum.RPCURL != "" {
		chainlink := fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:  cfg.Ethereum.RPCURL,
			Feeds:   cfg.Ethereum.Feeds,
			Timeout: cfg.Ethereum.RequestTimeout,
			MaxAge:  cfg.Ethereum.MaxAge,
		}, a.Logger)
		commodityProviders[asset.ProviderChainlink] = fetcher.NewConverted(chainlink, fetcher.OunceUSDToTenGramsINR(fx))
	}

	resolverOpts := pricing.ResolverOptions{Delay: pc.Delay}
	cryptoResolver := pricing.NewResolver(cryptoProviders, resolverOpts, a.Logger)
	goldResolver := pricing.NewResolver(commodityProviders, resolverOpts, a.Logger)
	gold := pricing.NewGoldCache(asset.GoldSymbol, goldResolver, pricing.GoldOptions{
		TTL:   cfg.Gold.TTL,
		Store: cache,
	}, a.Logger)

	builder := pricing.NewSnapshotBuilder(registry, cryptoResolver, gold, pricing.BuilderOptions{
		Concurrency:  cfg.Scheduler.Concurrency,
		AssetTimeout: cfg.Scheduler.AssetTimeout,
	}, a.Logger)

	return &engine{
		registry:   registry,
		builder:    builder,
		fx:         fx,
		gold:       gold,
		metalPrice: metalPrice,
	}, nil
}

// newSender picks the primary transport. SMTP without credentials degrades to the console.
func (a *App) newSender(ctx context.Context) (alerting.Sender, error) {
	cfg := a.Config.Alerting
	switch cfg.Transport {
	case config.TransportSES:
		return alerting.NewSESSender(ctx, cfg.SES.Region, cfg.From, cfg.SES.ConfigurationSet)
	case config.TransportConsole:
		return alerting.NewConsoleSender(a.Logger), nil
	default:
		if !a.Config.SMTPConfigured() {
			a.Logger.Warn().Msg("smtp credentials not configured; alerts will be logged only")
			return alerting.NewConsoleSender(a.Logger), nil
		}
		return alerting.NewSMTPSender(alerting.SMTPOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.From,
		}), nil
	}
}

func (a *App) newMirror() alerting.Sender {
	cfg := a.Config.Alerting.Telegram
	if !cfg.Enabled {
		return nil
	}
	return alerting.NewTelegramSender(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
}

func (a *App) newDispatcher(ctx context.Context, store storage.NotificationStore) (*alerting.Dispatcher, error) {
	sender, err := a.newSender(ctx)
	if err != nil {
		return nil, err
	}
	opts := alerting.DispatcherOptions{
		SendTimeout:   a.Config.Alerting.SendTimeout,
		RecordTimeout: a.Config.Alerting.RecordTimeout,
	}
	if mirror := a.newMirror(); mirror != nil {
		opts.Mirror = mirror
	}
	return alerting.NewDispatcher(sender, store, opts, a.Logger), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openCache returns the redis-backed entry store, or nil when redis is disabled.
func (a *App) openCache(ctx context.Context) (pricing.EntryStore, func(), error) {
	if !a.Config.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := storage.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	cache := storage.NewRedisCache(client, a.Config.Redis.KeyPrefix)
	return cache, func() { _ = cache.Close() }, nil
}

func (a *App) requireStore(ctx context.Context, purpose string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database not configured; cannot " + purpose)
	}
	return store, closeStore, nil
}

// Run executes the long-running monitoring service until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; history and alerts disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cache, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	eng, err := a.newEngine(cache)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		Cron:         a.Config.Scheduler.Cron,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	components := service.Components{
		Scheduler: sched,
		Builder:   eng.builder,
		LockKey:   a.Config.Scheduler.AdvisoryLockKey,
	}
	if store != nil {
		components.History = history.NewRecorder(store, history.Options{Retention: a.Config.History.Retention}, a.Logger)
		components.Locker = store
		if a.Config.Alerting.Enabled {
			dispatcher, err := a.newDispatcher(ctx, store)
			if err != nil {
				return err
			}
			components.Evaluator = alerting.NewEvaluator(store, eng.registry, a.Logger)
			components.Dispatcher = dispatcher
		}
	}
	svc := service.New(components, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if a.Config.HTTP.Enabled {
		details, favorites := a.newCatalog(eng.registry, store)
		handler := api.NewHandler(svc, eng.registry, a.Logger).WithCatalog(details, favorites)
		server := api.NewServer(handler, api.ServerOptions{Listen: a.Config.HTTP.Listen}, a.Logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	a.Logger.Info().Int("assets", eng.registry.Len()).Msg("starting monitoring service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit         int
	Latest        bool
	Notifications bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From    time.Time
	To      time.Time
	DryRun  bool
	Workers int
}
