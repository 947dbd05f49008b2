package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the read-only endpoints.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", h.Health)

	v1 := app.Group("/api")
	v1.Get("/assets", h.Assets)
	v1.Get("/assets/popular", h.PopularAssets)
	v1.Get("/assets/:symbol", h.AssetDetails)
	v1.Get("/users/:user/favorites", h.UserFavorites)
	v1.Get("/users/:user/favorites/:symbol", h.IsFavorite)
	v1.Get("/prices/current", h.CurrentPrices)
	v1.Get("/prices/current/:symbol", h.CurrentPrice)
	v1.Get("/prices/history/:symbol", h.PriceHistory)
	v1.Get("/prices/stats/:symbol", h.PriceStats)
}
