package server

import (
	"github.com/ibra-a/urbanjungle-website-sub000/internal/config"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/handler"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ルート登録に使うハンドラ一式
type Handlers struct {
	Cart      *handler.CartHandler
	Checkout  *handler.CheckoutHandler
	Inventory *handler.InventoryHandler
	Admin     *handler.AdminHandler
	Health    *handler.HealthHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers, gatherer prometheus.Gatherer) {
	h.Health.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg)
	h.Checkout.RegisterRoutes(e, cfg)
	h.Inventory.RegisterRoutes(e)
	h.Admin.RegisterRoutes(e, cfg)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
