package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"price-alerts/internal/asset"
	"price-alerts/internal/catalog"
	"price-alerts/internal/fetcher"
	"price-alerts/internal/storage"
)

// newCatalog wires the detail and favorites services. store may be nil, in
// which case reads fall back to static profiles and writes report ErrNotConfigured.
func (a *App) newCatalog(registry *asset.Registry, store *storage.Store) (*catalog.Details, *catalog.Favorites) {
	var (
		cards  storage.AssetDetailsStore
		favs   storage.FavoriteStore
		prices catalog.LatestPricer
	)
	if store != nil {
		cards, favs, prices = store, store, store
	}
	source := fetcher.NewCoinGecko(a.httpOptions(a.Config.Providers.CoinGecko))
	details := catalog.NewDetails(registry, source, cards, catalog.DetailsOptions{Delay: a.Config.Catalog.RefreshDelay}, a.Logger)
	favorites := catalog.NewFavorites(registry, favs, prices, catalog.FavoritesOptions{PopularLimit: a.Config.Catalog.PopularLimit}, a.Logger)
	return details, favorites
}

func (a *App) openCatalog(ctx context.Context, purpose string) (*catalog.Details, *catalog.Favorites, func(), error) {
	registry, err := asset.NewRegistry(a.Config.Assets)
	if err != nil {
		return nil, nil, nil, err
	}
	store, closeStore, err := a.requireStore(ctx, purpose)
	if err != nil {
		return nil, nil, nil, err
	}
	details, favorites := a.newCatalog(registry, store)
	return details, favorites, closeStore, nil
}

// RefreshAssets 刷新资产详情（市值、供应量、链接）并写入数据库；symbol 为空时刷新全部。
func (a *App) RefreshAssets(ctx context.Context, symbol string) error {
	details, _, closeStore, err := a.openCatalog(ctx, "refresh asset details")
	if err != nil {
		return err
	}
	defer closeStore()

	if symbol != "" {
		card, err := details.Refresh(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "%s refreshed from %s (market cap %s)\n", card.Symbol, card.Source, nullable(card.MarketCap.Valid, card.MarketCap.Decimal.String()))
		return nil
	}

	report, err := details.RefreshAll(ctx)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tResult")
	for _, s := range report.Refreshed {
		fmt.Fprintf(writer, "%s\tok\n", s)
	}
	for _, s := range report.Static {
		fmt.Fprintf(writer, "%s\tstatic\n", s)
	}
	failed := make([]string, 0, len(report.Failed))
	for s := range report.Failed {
		failed = append(failed, s)
	}
	sort.Strings(failed)
	for _, s := range failed {
		fmt.Fprintf(writer, "%s\tfailed: %s\n", s, report.Failed[s])
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d asset(s) failed to refresh", len(failed))
	}
	return nil
}

// AddFavorite follows an asset for a user.
func (a *App) AddFavorite(ctx context.Context, userID int64, symbol string) error {
	_, favorites, closeStore, err := a.openCatalog(ctx, "manage favorites")
	if err != nil {
		return err
	}
	defer closeStore()

	fav, err := favorites.Add(ctx, userID, symbol)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "user %d follows %s (%s)\n", fav.UserID, fav.Symbol, fav.Name)
	return nil
}

// RemoveFavorite unfollows an asset.
func (a *App) RemoveFavorite(ctx context.Context, userID int64, symbol string) error {
	_, favorites, closeStore, err := a.openCatalog(ctx, "manage favorites")
	if err != nil {
		return err
	}
	defer closeStore()

	removed, err := favorites.Remove(ctx, userID, symbol)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(a.Out, "user %d did not follow %s\n", userID, symbol)
		return nil
	}
	fmt.Fprintf(a.Out, "user %d no longer follows %s\n", userID, symbol)
	return nil
}

// ListFavorites prints a user's favorites, optionally with the newest stored prices.
func (a *App) ListFavorites(ctx context.Context, userID int64, withPrices bool) error {
	_, favorites, closeStore, err := a.openCatalog(ctx, "list favorites")
	if err != nil {
		return err
	}
	defer closeStore()

	var priced []catalog.PricedFavorite
	if withPrices {
		priced, err = favorites.WithPrices(ctx, userID, nil)
	} else {
		var list []storage.Favorite
		list, err = favorites.List(ctx, userID)
		for _, f := range list {
			priced = append(priced, catalog.PricedFavorite{Favorite: f})
		}
	}
	if err != nil {
		return err
	}
	if len(priced) == 0 {
		fmt.Fprintf(a.Out, "user %d has no favorites\n", userID)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	if withPrices {
		fmt.Fprintln(writer, "Symbol\tName\tPrice\tCurrency\tPriced At (UTC)\tAdded (UTC)")
	} else {
		fmt.Fprintln(writer, "Symbol\tName\tAdded (UTC)")
	}
	for _, p := range priced {
		added := p.AddedAt.UTC().Format(time.RFC3339)
		if !withPrices {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", p.Symbol, p.Name, added)
			continue
		}
		pricedAt := "-"
		if !p.PricedAt.IsZero() {
			pricedAt = p.PricedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol, p.Name, nullable(p.Price.Valid, p.Price.Decimal.String()), p.Currency, pricedAt, added)
	}
	return writer.Flush()
}

// PopularAssets prints the most followed assets.
func (a *App) PopularAssets(ctx context.Context, limit int) error {
	_, favorites, closeStore, err := a.openCatalog(ctx, "rank favorites")
	if err != nil {
		return err
	}
	defer closeStore()

	ranked, err := favorites.Popular(ctx, limit)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		fmt.Fprintln(a.Out, "no favorites recorded")
		return nil
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tName\tFollowers")
	for _, r := range ranked {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", r.Symbol, r.Name, r.Count)
	}
	return writer.Flush()
}

func nullable(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}
