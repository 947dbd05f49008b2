package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-alerts/internal/asset"
	"price-alerts/internal/metrics"
)

// GoldOptions configure the commodity cache.
type GoldOptions struct {
	TTL   time.Duration
	Key   string
	Store EntryStore
	Now   func() time.Time
}

// GoldCache serves one commodity price, consulting upstream at most once per TTL.
type GoldCache struct {
	mu       sync.Mutex
	symbol   string
	resolver *Resolver
	opts     GoldOptions
	entry    *CacheEntry
	warmed   bool
	logger   zerolog.Logger
}

// NewGoldCache wraps resolver for the commodity identified by symbol.
func NewGoldCache(symbol string, resolver *Resolver, opts GoldOptions, logger zerolog.Logger) *GoldCache {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Key == "" {
		opts.Key = "price:" + symbol
	}
	return &GoldCache{
		symbol:   symbol,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With().Str("component", "gold_cache").Str("symbol", symbol).Logger(),
	}
}

// Resolve returns the cached price while fresh, else refreshes through the provider chain.
// On a failed refresh the previous entry is served, then the emergency fallback.
func (g *GoldCache) Resolve(ctx context.Context, d asset.Descriptor) (Quote, error) {
	if d.Symbol != g.symbol {
		return Quote{}, fmt.Errorf("gold cache for %s cannot resolve %s", g.symbol, d.Symbol)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.warm(ctx)
	now := g.opts.Now()
	if fresh(g.entry, now, g.opts.TTL) {
		metrics.Resolutions.WithLabelValues(d.Symbol, string(OriginCached)).Inc()
		g.logger.Debug().Time("refreshed_at", g.entry.RefreshedAt).Msg("serving cached price")
		return newQuote(d, g.entry.Price, now, g.entry.Source, OriginCached), nil
	}

	q, err := g.resolver.Live(ctx, d)
	if err == nil {
		g.entry = &CacheEntry{Price: q.Price, RefreshedAt: now, Source: q.Source}
		g.persist(ctx)
		metrics.CacheRefreshes.WithLabelValues("gold", "ok").Inc()
		metrics.Resolutions.WithLabelValues(d.Symbol, string(OriginLive)).Inc()
		g.logger.Info().Str("price", q.Price.String()).Str("source", q.Source).Msg("price refreshed")
		q.Timestamp = now.UTC()
		return q, nil
	}

	metrics.CacheRefreshes.WithLabelValues("gold", "failed").Inc()
	if g.entry != nil {
		metrics.Resolutions.WithLabelValues(d.Symbol, string(OriginCached)).Inc()
		g.logger.Warn().Err(err).Time("refreshed_at", g.entry.RefreshedAt).Msg("refresh failed; serving expired cache entry")
		return newQuote(d, g.entry.Price, now, g.entry.Source, OriginCached), nil
	}
	return g.resolver.Fallback(d, err)
}

// Entry returns a copy of the cache entry.
func (g *GoldCache) Entry() (CacheEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entry == nil {
		return CacheEntry{}, false
	}
	return *g.entry, true
}

func (g *GoldCache) warm(ctx context.Context) {
	if g.warmed || g.opts.Store == nil {
		return
	}
	g.warmed = true
	e, ok, err := g.opts.Store.LoadEntry(ctx, g.opts.Key)
	if err != nil {
		g.logger.Warn().Err(err).Msg("load persisted entry failed")
		return
	}
	if ok && e.Price.IsPositive() {
		g.entry = &e
		g.logger.Info().Time("refreshed_at", e.RefreshedAt).Msg("restored persisted entry")
	}
}

func (g *GoldCache) persist(ctx context.Context) {
	if g.opts.Store == nil || g.entry == nil {
		return
	}
	if err := g.opts.Store.SaveEntry(ctx, g.opts.Key, *g.entry, g.opts.TTL*7); err != nil {
		g.logger.Warn().Err(err).Msg("persist entry failed")
	}
}

var _ AssetResolver = (*GoldCache)(nil)
