package handler

import (
	"net/http"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /inventory の公開API（在庫確認）
type InventoryHandler struct {
	reservations *usecase.ReservationUsecase
	inventory    *usecase.InventoryUsecase
}

// DI
func NewInventoryHandler(reservations *usecase.ReservationUsecase, inventory *usecase.InventoryUsecase) *InventoryHandler {
	return &InventoryHandler{reservations: reservations, inventory: inventory}
}

type StockRequestBody struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type AvailabilityRequest struct {
	Items []StockRequestBody `json:"items"`
}

func (h *InventoryHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/inventory/availability", h.availability)
	e.GET("/inventory/:product_id", h.stock)
}

func (h *InventoryHandler) availability(c echo.Context) error {
	var req AvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.reservations.CheckAvailability(c.Request().Context(), toStockRequests(req.Items))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *InventoryHandler) stock(c echo.Context) error {
	out, err := h.inventory.GetStock(c.Request().Context(), c.Param("product_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func toStockRequests(items []StockRequestBody) []model.StockRequest {
	out := make([]model.StockRequest, 0, len(items))
	for _, it := range items {
		out = append(out, model.StockRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
