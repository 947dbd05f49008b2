package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/fetcher"
	"price-alerts/internal/metrics"
)

// FXOptions configure the FX rate cache.
type FXOptions struct {
	TTL time.Duration
	// Default is served when no rate was ever fetched.
	Default decimal.Decimal
	Key     string
	Store   EntryStore
	Now     func() time.Time
}

// FXCache memoises a conversion rate for TTL. It never returns an error.
type FXCache struct {
	mu     sync.Mutex
	source fetcher.FXSource
	opts   FXOptions
	entry  *CacheEntry
	warmed bool
	logger zerolog.Logger
}

// NewFXCache wraps source.
func NewFXCache(source fetcher.FXSource, opts FXOptions, logger zerolog.Logger) *FXCache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Key == "" {
		opts.Key = "fx:USDINR"
	}
	return &FXCache{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "fx_cache").Str("key", opts.Key).Logger(),
	}
}

// Rate returns the cached rate, refreshing it when older than TTL.
func (c *FXCache) Rate(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.warm(ctx)
	now := c.opts.Now()
	if fresh(c.entry, now, c.opts.TTL) {
		return c.entry.Price, nil
	}

	rate, err := c.source.Rate(ctx)
	if err == nil {
		c.entry = &CacheEntry{Price: rate, RefreshedAt: now, Source: "exchangerate"}
		metrics.CacheRefreshes.WithLabelValues("fx", "ok").Inc()
		c.persist(ctx)
		c.logger.Info().Str("rate", rate.String()).Msg("fx rate refreshed")
		return rate, nil
	}

	metrics.CacheRefreshes.WithLabelValues("fx", "failed").Inc()
	if c.entry != nil {
		c.logger.Warn().Err(err).Time("refreshed_at", c.entry.RefreshedAt).Msg("fx refresh failed; serving stale rate")
		return c.entry.Price, nil
	}
	c.logger.Warn().Err(err).Str("default", c.opts.Default.String()).Msg("fx refresh failed; serving default rate")
	return c.opts.Default, nil
}

// Entry returns a copy of the current entry.
func (c *FXCache) Entry() (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return CacheEntry{}, false
	}
	return *c.entry, true
}

func (c *FXCache) warm(ctx context.Context) {
	if c.warmed || c.opts.Store == nil {
		return
	}
	c.warmed = true
	e, ok, err := c.opts.Store.LoadEntry(ctx, c.opts.Key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("load persisted fx rate failed")
		return
	}
	if ok && e.Price.IsPositive() {
		c.entry = &e
	}
}

func (c *FXCache) persist(ctx context.Context) {
	if c.opts.Store == nil || c.entry == nil {
		return
	}
	if err := c.opts.Store.SaveEntry(ctx, c.opts.Key, *c.entry, 0); err != nil {
		c.logger.Warn().Err(err).Msg("persist fx rate failed")
	}
}

var _ fetcher.FXSource = (*FXCache)(nil)
