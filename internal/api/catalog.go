package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"price-alerts/internal/catalog"
	"price-alerts/internal/pricing"
	"price-alerts/internal/storage"
)

const maxPopularLimit = 50

// DetailsReader serves asset reference cards.
type DetailsReader interface {
	Get(ctx context.Context, symbol string) (storage.AssetDetails, error)
}

// FavoritesReader serves the read side of favorites. Mutations stay on the CLI.
type FavoritesReader interface {
	WithPrices(ctx context.Context, userID int64, snap *pricing.Snapshot) ([]catalog.PricedFavorite, error)
	IsFavorite(ctx context.Context, userID int64, symbol string) (bool, error)
	Count(ctx context.Context, symbol string) (int64, error)
	Popular(ctx context.Context, limit int) ([]storage.FavoriteCount, error)
}

type detailsView struct {
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	MarketCap         decimal.NullDecimal `json:"market_cap"`
	Volume24h         decimal.NullDecimal `json:"volume_24h"`
	CirculatingSupply decimal.NullDecimal `json:"circulating_supply"`
	TotalSupply       decimal.NullDecimal `json:"total_supply"`
	MaxSupply         decimal.NullDecimal `json:"max_supply"`
	LaunchDate        string              `json:"launch_date,omitempty"`
	Description       string              `json:"description,omitempty"`
	Website           string              `json:"website,omitempty"`
	Whitepaper        string              `json:"whitepaper,omitempty"`
	GitHub            string              `json:"github,omitempty"`
	Twitter           string              `json:"twitter,omitempty"`
	Reddit            string              `json:"reddit,omitempty"`
	Source            string              `json:"source"`
	UpdatedAt         *time.Time          `json:"last_updated,omitempty"`
	FavoriteCount     *int64              `json:"favorite_count,omitempty"`
}

type favoriteView struct {
	Symbol   string              `json:"asset_symbol"`
	Name     string              `json:"asset_name"`
	AddedAt  time.Time           `json:"added_at"`
	Price    decimal.NullDecimal `json:"current_price"`
	Currency string              `json:"currency,omitempty"`
	PricedAt *time.Time          `json:"priced_at,omitempty"`
	Origin   string              `json:"origin,omitempty"`
}

// WithCatalog enables the asset detail and favorites routes. Either reader may be nil.
func (h *Handler) WithCatalog(details DetailsReader, favorites FavoritesReader) *Handler {
	h.details = details
	h.favorites = favorites
	return h
}

// AssetDetails returns the reference card of one asset with its follower count.
func (h *Handler) AssetDetails(c *fiber.Ctx) error {
	symbol, err := h.symbol(c)
	if err != nil {
		return err
	}
	if h.details == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "asset details are not configured")
	}

	card, err := h.details.Get(c.UserContext(), symbol)
	if err != nil {
		return h.catalogError(err)
	}
	view := detailsView{
		Symbol:            card.Symbol,
		Name:              card.Name,
		MarketCap:         card.MarketCap,
		Volume24h:         card.Volume24h,
		CirculatingSupply: card.CirculatingSupply,
		TotalSupply:       card.TotalSupply,
		MaxSupply:         card.MaxSupply,
		LaunchDate:        card.LaunchDate,
		Description:       card.Description,
		Website:           card.Website,
		Whitepaper:        card.Whitepaper,
		GitHub:            card.GitHub,
		Twitter:           card.Twitter,
		Reddit:            card.Reddit,
		Source:            card.Source,
	}
	if !card.UpdatedAt.IsZero() {
		at := card.UpdatedAt
		view.UpdatedAt = &at
	}
	if h.favorites != nil {
		n, err := h.favorites.Count(c.UserContext(), symbol)
		switch {
		case err == nil:
			view.FavoriteCount = &n
		case !errors.Is(err, storage.ErrNotConfigured):
			h.logger.Warn().Err(err).Str("symbol", symbol).Msg("favorite count failed")
		}
	}
	return c.JSON(view)
}

// PopularAssets ranks assets by follower count, capped by ?limit=.
func (h *Handler) PopularAssets(c *fiber.Ctx) error {
	if h.favorites == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "favorites are not configured")
	}
	limit := clamp(c.QueryInt("limit", 0), 0, maxPopularLimit)
	ranked, err := h.favorites.Popular(c.UserContext(), limit)
	if err != nil {
		return h.catalogError(err)
	}
	out := make([]fiber.Map, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, fiber.Map{"asset_symbol": r.Symbol, "asset_name": r.Name, "favorite_count": r.Count})
	}
	return c.JSON(fiber.Map{"assets": out})
}

// UserFavorites lists a user's favorites priced from the current snapshot.
func (h *Handler) UserFavorites(c *fiber.Ctx) error {
	if h.favorites == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "favorites are not configured")
	}
	userID, err := userParam(c)
	if err != nil {
		return err
	}

	priced, err := h.favorites.WithPrices(c.UserContext(), userID, h.backend.CurrentSnapshot())
	if err != nil {
		return h.catalogError(err)
	}
	out := make([]favoriteView, 0, len(priced))
	for _, p := range priced {
		v := favoriteView{
			Symbol:   p.Symbol,
			Name:     p.Name,
			AddedAt:  p.AddedAt,
			Price:    p.Price,
			Currency: p.Currency,
			Origin:   p.Origin,
		}
		if !p.PricedAt.IsZero() {
			at := p.PricedAt
			v.PricedAt = &at
		}
		out = append(out, v)
	}
	return c.JSON(fiber.Map{"user_id": userID, "favorites": out})
}

// IsFavorite reports whether the user follows one asset.
func (h *Handler) IsFavorite(c *fiber.Ctx) error {
	if h.favorites == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "favorites are not configured")
	}
	userID, err := userParam(c)
	if err != nil {
		return err
	}
	symbol, err := h.symbol(c)
	if err != nil {
		return err
	}

	ok, err := h.favorites.IsFavorite(c.UserContext(), userID, symbol)
	if err != nil {
		return h.catalogError(err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "asset_symbol": symbol, "is_favorite": ok})
}

func userParam(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("user")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "user id must be a positive integer")
	}
	return int64(id), nil
}

func (h *Handler) catalogError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrUnknownAsset):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInvalidUser):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotConfigured):
		return fiber.NewError(fiber.StatusNotImplemented, err.Error())
	}
	h.logger.Error().Err(err).Msg("catalog read failed")
	return fiber.NewError(fiber.StatusInternalServerError, "catalog unavailable")
}
