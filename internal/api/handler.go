package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
	"price-alerts/internal/history"
	"price-alerts/internal/pricing"
	"price-alerts/internal/service"
	"price-alerts/internal/storage"
	"price-alerts/internal/version"
)

const (
	defaultHistoryDays  = 7
	defaultStatsDays    = 30
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
	maxDays             = 90
)

// Backend is the engine surface the API reads from.
type Backend interface {
	CurrentSnapshot() *pricing.Snapshot
	LastCycle() (service.CycleReport, bool)
	History(ctx context.Context, symbol string, window time.Duration, limit int) ([]storage.PriceRow, error)
	Stats(ctx context.Context, symbol string, window time.Duration) (history.Summary, error)
}

// Handler serves price reads.
type Handler struct {
	backend   Backend
	registry  *asset.Registry
	details   DetailsReader
	favorites FavoritesReader
	logger    zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(backend Backend, registry *asset.Registry, logger zerolog.Logger) *Handler {
	return &Handler{
		backend:  backend,
		registry: registry,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

type assetView struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Currency string         `json:"currency"`
	Category asset.Category `json:"category"`
}

type pointView struct {
	Price      decimal.Decimal `json:"price"`
	Source     string          `json:"source"`
	Origin     string          `json:"origin"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Health reports whether a snapshot has been produced.
func (h *Handler) Health(c *fiber.Ctx) error {
	last, ok := h.backend.LastCycle()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "starting", "build": version.Get()})
	}
	status := "ok"
	if len(last.Degraded) > 0 || len(last.Errors) > 0 {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":     status,
		"build":      version.Get(),
		"last_cycle": last,
	})
}

// Assets lists the configured assets.
func (h *Handler) Assets(c *fiber.Ctx) error {
	all := h.registry.All()
	out := make([]assetView, 0, len(all))
	for _, d := range all {
		out = append(out, assetView{Symbol: d.Symbol, Name: d.Name, Currency: d.Currency, Category: d.Category})
	}
	return c.JSON(fiber.Map{"assets": out})
}

// CurrentPrices returns the latest snapshot.
func (h *Handler) CurrentPrices(c *fiber.Ctx) error {
	snap := h.backend.CurrentSnapshot()
	if snap == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no snapshot yet")
	}
	return c.JSON(fiber.Map{
		"taken_at": snap.TakenAt,
		"prices":   snap.Sorted(),
		"degraded": snap.Degraded(),
	})
}

// CurrentPrice returns the latest quote for one symbol.
func (h *Handler) CurrentPrice(c *fiber.Ctx) error {
	symbol, err := h.symbol(c)
	if err != nil {
		return err
	}
	q, ok := h.backend.CurrentSnapshot().Get(symbol)
	if !ok {
		return fiber.NewError(fiber.StatusServiceUnavailable, "price not available for "+symbol)
	}
	return c.JSON(q)
}

// PriceHistory returns persisted prices within ?days= (default 7), capped by ?limit=.
func (h *Handler) PriceHistory(c *fiber.Ctx) error {
	symbol, err := h.symbol(c)
	if err != nil {
		return err
	}
	days := clamp(c.QueryInt("days", defaultHistoryDays), 1, maxDays)
	limit := clamp(c.QueryInt("limit", defaultHistoryLimit), 1, maxHistoryLimit)

	rows, err := h.backend.History(c.UserContext(), symbol, time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		return h.readError(err)
	}
	points := make([]pointView, 0, len(rows))
	for _, r := range rows {
		points = append(points, pointView{Price: r.Price, Source: r.Source, Origin: r.Origin, RecordedAt: r.RecordedAt})
	}
	return c.JSON(fiber.Map{
		"symbol": symbol,
		"days":   days,
		"points": points,
	})
}

// PriceStats summarises persisted prices within ?days= (default 30).
func (h *Handler) PriceStats(c *fiber.Ctx) error {
	symbol, err := h.symbol(c)
	if err != nil {
		return err
	}
	days := clamp(c.QueryInt("days", defaultStatsDays), 1, maxDays)

	summary, err := h.backend.Stats(c.UserContext(), symbol, time.Duration(days)*24*time.Hour)
	if err != nil {
		if errors.Is(err, history.ErrNoData) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return h.readError(err)
	}
	return c.JSON(summary)
}

func (h *Handler) symbol(c *fiber.Ctx) (string, error) {
	symbol := strings.ToUpper(c.Params("symbol"))
	if _, ok := h.registry.Lookup(symbol); !ok {
		return "", fiber.NewError(fiber.StatusNotFound, "unknown asset "+symbol)
	}
	return symbol, nil
}

func (h *Handler) readError(err error) error {
	if errors.Is(err, service.ErrHistoryDisabled) || errors.Is(err, storage.ErrNotConfigured) {
		return fiber.NewError(fiber.StatusNotImplemented, err.Error())
	}
	h.logger.Error().Err(err).Msg("history read failed")
	return fiber.NewError(fiber.StatusInternalServerError, "history unavailable")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
