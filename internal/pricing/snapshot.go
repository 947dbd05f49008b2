package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"price-alerts/internal/asset"
	"price-alerts/internal/metrics"
)

// BuilderOptions tune snapshot fan-out.
type BuilderOptions struct {
	Concurrency int
	// AssetTimeout bounds a single asset's resolution, chain walk included.
	AssetTimeout time.Duration
	Now          func() time.Time
}

// SnapshotBuilder resolves every registered asset concurrently.
type SnapshotBuilder struct {
	registry  *asset.Registry
	crypto    AssetResolver
	commodity AssetResolver
	opts      BuilderOptions
	logger    zerolog.Logger
}

// NewSnapshotBuilder routes commodity assets to commodity and everything else to crypto.
func NewSnapshotBuilder(registry *asset.Registry, crypto, commodity AssetResolver, opts BuilderOptions, logger zerolog.Logger) *SnapshotBuilder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if commodity == nil {
		commodity = crypto
	}
	return &SnapshotBuilder{
		registry:  registry,
		crypto:    crypto,
		commodity: commodity,
		opts:      opts,
		logger:    logger.With().Str("component", "snapshot_builder").Logger(),
	}
}

// Build returns a fresh snapshot. Assets that fail to resolve are left out.
func (b *SnapshotBuilder) Build(ctx context.Context) *Snapshot {
	descs := b.registry.All()
	snap := &Snapshot{
		TakenAt: b.opts.Now().UTC(),
		Quotes:  make(map[string]Quote, len(descs)),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(b.opts.Concurrency)

	for _, d := range descs {
		d := d
		g.Go(func() error {
			q, err := b.resolveOne(ctx, d)
			if err != nil {
				b.logger.Error().Err(err).Str("symbol", d.Symbol).Msg("asset omitted from snapshot")
				return nil
			}
			mu.Lock()
			snap.Quotes[d.Symbol] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	metrics.SnapshotAssets.Set(float64(len(snap.Quotes)))
	b.logger.Info().
		Int("assets", len(snap.Quotes)).
		Int("configured", len(descs)).
		Strs("fallback", snap.Degraded()).
		Msg("snapshot built")
	return snap
}

func (b *SnapshotBuilder) resolveOne(ctx context.Context, d asset.Descriptor) (q Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panic: %v", r)
		}
	}()

	if b.opts.AssetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.AssetTimeout)
		defer cancel()
	}

	resolver := b.crypto
	if d.Category == asset.CategoryCommodity {
		resolver = b.commodity
	}

	q, err = resolver.Resolve(ctx, d)
	if err != nil {
		return Quote{}, err
	}
	if q.Currency != d.Currency {
		return Quote{}, fmt.Errorf("currency mismatch: quote %s, configured %s", q.Currency, d.Currency)
	}
	if !q.Price.IsPositive() {
		return Quote{}, fmt.Errorf("non-positive price %s", q.Price)
	}
	return q, nil
}
