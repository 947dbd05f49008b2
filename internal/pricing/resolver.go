package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
	"price-alerts/internal/fetcher"
	"price-alerts/internal/metrics"
)

var (
	// ErrAllProvidersExhausted means every provider in the chain failed.
	ErrAllProvidersExhausted = errors.New("pricing: all providers exhausted")
	// ErrNoFallback means the chain failed and no emergency price is configured.
	ErrNoFallback = errors.New("pricing: no emergency fallback configured")
)

// AssetResolver resolves one asset into a quote.
type AssetResolver interface {
	Resolve(ctx context.Context, d asset.Descriptor) (Quote, error)
}

// ResolverOptions tune the fallback chain walk.
type ResolverOptions struct {
	// Delay is inserted between consecutive provider attempts.
	Delay time.Duration
	Now   func() time.Time
}

// Resolver walks an asset's provider chain in order.
type Resolver struct {
	providers map[string]fetcher.Provider
	opts      ResolverOptions
	logger    zerolog.Logger
}

// NewResolver builds a resolver over a provider registry keyed by provider name.
func NewResolver(providers map[string]fetcher.Provider, opts ResolverOptions, logger zerolog.Logger) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	reg := make(map[string]fetcher.Provider, len(providers))
	for k, v := range providers {
		reg[k] = v
	}
	return &Resolver{
		providers: reg,
		opts:      opts,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Live returns the first successful provider quote, or ErrAllProvidersExhausted.
func (r *Resolver) Live(ctx context.Context, d asset.Descriptor) (Quote, error) {
	var errs []error
	attempted := 0
	for _, name := range d.Providers {
		p, ok := r.providers[name]
		if !ok {
			r.logger.Debug().Str("symbol", d.Symbol).Str("provider", name).Msg("provider not registered; skipping")
			continue
		}

		if attempted > 0 {
			if err := sleep(ctx, r.opts.Delay); err != nil {
				errs = append(errs, err)
				break
			}
		}
		attempted++

		start := time.Now()
		price, err := p.Fetch(ctx, d)
		metrics.ObserveSince(metrics.ProviderLatency.WithLabelValues(name), start)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(name, string(fetcher.KindOf(err))).Inc()
			r.logger.Warn().Err(err).
				Str("symbol", d.Symbol).
				Str("provider", name).
				Str("kind", string(fetcher.KindOf(err))).
				Msg("provider attempt failed")
			errs = append(errs, err)
			continue
		}
		metrics.ProviderRequests.WithLabelValues(name, "ok").Inc()

		r.logger.Debug().Str("symbol", d.Symbol).Str("provider", name).Str("price", price.String()).Msg("price resolved")
		return newQuote(d, price, r.opts.Now(), name, OriginLive), nil
	}

	if attempted == 0 {
		errs = append(errs, fmt.Errorf("no registered provider among %v", d.Providers))
	}
	return Quote{}, fmt.Errorf("%s: %w", d.Symbol, errors.Join(append([]error{ErrAllProvidersExhausted}, errs...)...))
}

// Resolve returns a live quote, or the emergency fallback when the chain is exhausted.
func (r *Resolver) Resolve(ctx context.Context, d asset.Descriptor) (Quote, error) {
	q, err := r.Live(ctx, d)
	if err == nil {
		metrics.Resolutions.WithLabelValues(d.Symbol, string(OriginLive)).Inc()
		return q, nil
	}
	return r.Fallback(d, err)
}

// Fallback produces the emergency quote for d, or ErrNoFallback.
func (r *Resolver) Fallback(d asset.Descriptor, cause error) (Quote, error) {
	if !d.HasFallback() {
		return Quote{}, fmt.Errorf("%w: %v", ErrNoFallback, cause)
	}
	metrics.Resolutions.WithLabelValues(d.Symbol, string(OriginFallback)).Inc()
	r.logger.Warn().Str("symbol", d.Symbol).
		Str("fallback", d.Fallback.String()).
		AnErr("cause", cause).
		Msg("all providers failed; serving emergency fallback price")
	return newQuote(d, d.Fallback, r.opts.Now(), "fallback", OriginFallback), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StaticPrice resolves from a fixed price table without touching the network.
type StaticPrice map[string]decimal.Decimal

// Resolve returns the configured price for d.
func (s StaticPrice) Resolve(_ context.Context, d asset.Descriptor) (Quote, error) {
	p, ok := s[d.Symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", d.Symbol, ErrAllProvidersExhausted)
	}
	return newQuote(d, p, time.Now(), "static", OriginLive), nil
}

var (
	_ AssetResolver = (*Resolver)(nil)
	_ AssetResolver = StaticPrice(nil)
)
