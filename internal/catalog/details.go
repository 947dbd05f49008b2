// Package catalog serves asset reference cards and per-user favorites.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"price-alerts/internal/asset"
	"price-alerts/internal/fetcher"
	"price-alerts/internal/metrics"
	"price-alerts/internal/storage"
)

// SourceStatic marks a card built only from the configured profile.
const SourceStatic = "static"

var (
	// ErrUnknownAsset is returned for symbols missing from the registry.
	ErrUnknownAsset = errors.New("catalog: unknown asset")
	// ErrInvalidUser is returned for non-positive user ids.
	ErrInvalidUser = errors.New("catalog: user id must be positive")
)

// DetailsOptions tune the detail refresher.
type DetailsOptions struct {
	// Delay separates consecutive upstream fetches in RefreshAll.
	Delay time.Duration
	Now   func() time.Time
}

// Details keeps asset reference cards up to date.
type Details struct {
	registry *asset.Registry
	source   fetcher.DetailsSource
	store    storage.AssetDetailsStore
	opts     DetailsOptions
	logger   zerolog.Logger
}

// NewDetails constructs a Details service. source and store may be nil.
func NewDetails(registry *asset.Registry, source fetcher.DetailsSource, store storage.AssetDetailsStore, opts DetailsOptions, logger zerolog.Logger) *Details {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Details{
		registry: registry,
		source:   source,
		store:    store,
		opts:     opts,
		logger:   logger.With().Str("component", "asset_details").Logger(),
	}
}

// RefreshReport summarises a RefreshAll pass.
type RefreshReport struct {
	Refreshed []string
	Static    []string
	Failed    map[string]string
}

// Refresh fetches market data for symbol and stores the merged card.
// Commodities and a missing source produce a profile-only card. On a fetch
// failure the previously stored card is left untouched.
func (d *Details) Refresh(ctx context.Context, symbol string) (storage.AssetDetails, error) {
	desc, ok := d.registry.Lookup(symbol)
	if !ok {
		return storage.AssetDetails{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	if d.store == nil {
		return storage.AssetDetails{}, storage.ErrNotConfigured
	}

	card := staticCard(desc)
	card.UpdatedAt = d.opts.Now().UTC()
	result := "static"
	if d.fetches(desc) {
		md, err := d.source.FetchDetails(ctx, desc)
		if err != nil {
			metrics.DetailRefreshes.WithLabelValues(desc.Symbol, "failed").Inc()
			d.logger.Warn().Err(err).Str("symbol", desc.Symbol).Msg("detail fetch failed; keeping stored card")
			return storage.AssetDetails{}, fmt.Errorf("fetch details %s: %w", desc.Symbol, err)
		}
		merge(&card, md)
		card.Source = d.source.Name()
		result = "ok"
	}

	if err := d.store.UpsertAssetDetails(ctx, card); err != nil {
		metrics.DetailRefreshes.WithLabelValues(desc.Symbol, "failed").Inc()
		return storage.AssetDetails{}, err
	}
	metrics.DetailRefreshes.WithLabelValues(desc.Symbol, result).Inc()
	d.logger.Info().Str("symbol", desc.Symbol).Str("source", card.Source).Msg("asset details saved")
	return card, nil
}

// RefreshAll refreshes every registered asset in order, pausing between
// upstream fetches. Per-asset failures are reported, not returned.
func (d *Details) RefreshAll(ctx context.Context) (RefreshReport, error) {
	report := RefreshReport{Failed: map[string]string{}}
	if d.store == nil {
		return report, storage.ErrNotConfigured
	}

	fetched := false
	for _, desc := range d.registry.All() {
		if d.fetches(desc) {
			if fetched && d.opts.Delay > 0 {
				timer := time.NewTimer(d.opts.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return report, ctx.Err()
				case <-timer.C:
				}
			}
			fetched = true
		}

		card, err := d.Refresh(ctx, desc.Symbol)
		switch {
		case err != nil:
			report.Failed[desc.Symbol] = err.Error()
		case card.Source == SourceStatic:
			report.Static = append(report.Static, desc.Symbol)
		default:
			report.Refreshed = append(report.Refreshed, desc.Symbol)
		}
	}

	d.logger.Info().
		Int("refreshed", len(report.Refreshed)).
		Int("static", len(report.Static)).
		Int("failed", len(report.Failed)).
		Msg("asset details refresh complete")
	return report, nil
}

// Get returns the stored card, or the static profile when none was stored.
func (d *Details) Get(ctx context.Context, symbol string) (storage.AssetDetails, error) {
	desc, ok := d.registry.Lookup(symbol)
	if !ok {
		return storage.AssetDetails{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	if d.store != nil {
		card, err := d.store.GetAssetDetails(ctx, desc.Symbol)
		switch {
		case err == nil:
			return card, nil
		case errors.Is(err, storage.ErrDetailsNotFound), errors.Is(err, storage.ErrNotConfigured):
		default:
			return storage.AssetDetails{}, err
		}
	}
	return staticCard(desc), nil
}

func (d *Details) fetches(desc asset.Descriptor) bool {
	return d.source != nil && desc.Category == asset.CategoryCrypto
}

func staticCard(desc asset.Descriptor) storage.AssetDetails {
	return storage.AssetDetails{
		Symbol:      desc.Symbol,
		Name:        desc.Name,
		LaunchDate:  desc.Profile.LaunchDate,
		Description: desc.Profile.Description,
		Website:     desc.Profile.Website,
		Whitepaper:  desc.Profile.Whitepaper,
		Source:      SourceStatic,
	}
}

func merge(card *storage.AssetDetails, md fetcher.MarketDetails) {
	if name := strings.TrimSpace(md.Name); name != "" {
		card.Name = name
	}
	card.MarketCap = md.MarketCap
	card.Volume24h = md.Volume24h
	card.CirculatingSupply = md.CirculatingSupply
	card.TotalSupply = md.TotalSupply
	card.MaxSupply = md.MaxSupply
	card.GitHub = md.GitHub
	card.Twitter = md.Twitter
	card.Reddit = md.Reddit
}
