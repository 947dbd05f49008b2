package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
	"price-alerts/internal/pricing"
	"price-alerts/internal/storage"
)

// LatestPricer supplies persisted prices when the live snapshot lacks an asset.
type LatestPricer interface {
	LatestPrices(ctx context.Context) ([]storage.PriceRow, error)
}

// FavoritesOptions tune the favorites service.
type FavoritesOptions struct {
	PopularLimit int
}

// Favorites manages the assets each user follows.
type Favorites struct {
	registry *asset.Registry
	store    storage.FavoriteStore
	prices   LatestPricer
	opts     FavoritesOptions
	logger   zerolog.Logger
}

// NewFavorites constructs a Favorites service. prices may be nil.
func NewFavorites(registry *asset.Registry, store storage.FavoriteStore, prices LatestPricer, opts FavoritesOptions, logger zerolog.Logger) *Favorites {
	if opts.PopularLimit <= 0 {
		opts.PopularLimit = 10
	}
	return &Favorites{
		registry: registry,
		store:    store,
		prices:   prices,
		opts:     opts,
		logger:   logger.With().Str("component", "favorites").Logger(),
	}
}

// PricedFavorite is a favorite with the newest known price. Price is invalid
// when neither the snapshot nor history has the asset.
type PricedFavorite struct {
	storage.Favorite
	Price    decimal.NullDecimal
	Currency string
	PricedAt time.Time
	Origin   string
}

// Add follows symbol for userID. Adding twice is a no-op.
func (f *Favorites) Add(ctx context.Context, userID int64, symbol string) (storage.Favorite, error) {
	if err := f.ready(userID); err != nil {
		return storage.Favorite{}, err
	}
	desc, ok := f.registry.Lookup(symbol)
	if !ok {
		return storage.Favorite{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	fav, err := f.store.AddFavorite(ctx, storage.Favorite{UserID: userID, Symbol: desc.Symbol, Name: desc.Name})
	if err != nil {
		return storage.Favorite{}, err
	}
	f.logger.Info().Int64("user_id", userID).Str("symbol", desc.Symbol).Msg("favorite added")
	return fav, nil
}

// Remove unfollows symbol. Symbols no longer in the registry can still be removed.
func (f *Favorites) Remove(ctx context.Context, userID int64, symbol string) (bool, error) {
	if err := f.ready(userID); err != nil {
		return false, err
	}
	return f.store.RemoveFavorite(ctx, userID, normalize(symbol))
}

// List returns the user's favorites, newest first.
func (f *Favorites) List(ctx context.Context, userID int64) ([]storage.Favorite, error) {
	if err := f.ready(userID); err != nil {
		return nil, err
	}
	return f.store.ListFavorites(ctx, userID)
}

// IsFavorite reports whether the user follows symbol.
func (f *Favorites) IsFavorite(ctx context.Context, userID int64, symbol string) (bool, error) {
	if err := f.ready(userID); err != nil {
		return false, err
	}
	return f.store.IsFavorite(ctx, userID, normalize(symbol))
}

// Count reports how many users follow symbol.
func (f *Favorites) Count(ctx context.Context, symbol string) (int64, error) {
	if f.store == nil {
		return 0, storage.ErrNotConfigured
	}
	return f.store.CountFavorites(ctx, normalize(symbol))
}

// Popular ranks assets by follower count. A non-positive limit uses the configured default.
func (f *Favorites) Popular(ctx context.Context, limit int) ([]storage.FavoriteCount, error) {
	if f.store == nil {
		return nil, storage.ErrNotConfigured
	}
	if limit <= 0 {
		limit = f.opts.PopularLimit
	}
	return f.store.PopularAssets(ctx, limit)
}

// WithPrices joins the user's favorites with snap, falling back to the newest
// stored price for assets the snapshot lacks. snap may be nil.
func (f *Favorites) WithPrices(ctx context.Context, userID int64, snap *pricing.Snapshot) ([]PricedFavorite, error) {
	favs, err := f.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var stored map[string]storage.PriceRow
	out := make([]PricedFavorite, 0, len(favs))
	for _, fav := range favs {
		pf := PricedFavorite{Favorite: fav}
		if q, ok := snap.Get(fav.Symbol); ok {
			pf.Price = decimal.NewNullDecimal(q.Price)
			pf.Currency = q.Currency
			pf.PricedAt = q.Timestamp
			pf.Origin = string(q.Origin)
			out = append(out, pf)
			continue
		}

		if stored == nil {
			stored = f.latest(ctx)
		}
		if row, ok := stored[fav.Symbol]; ok {
			pf.Price = decimal.NewNullDecimal(row.Price)
			pf.Currency = row.Currency
			pf.PricedAt = row.RecordedAt
			pf.Origin = row.Origin
		}
		out = append(out, pf)
	}
	return out, nil
}

// latest never returns nil so a failed load is attempted once per call.
func (f *Favorites) latest(ctx context.Context) map[string]storage.PriceRow {
	out := map[string]storage.PriceRow{}
	if f.prices == nil {
		return out
	}
	rows, err := f.prices.LatestPrices(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("load latest prices failed; favorites returned unpriced")
		return out
	}
	for _, r := range rows {
		out[r.Symbol] = r
	}
	return out
}

func (f *Favorites) ready(userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	if f.store == nil {
		return storage.ErrNotConfigured
	}
	return nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
