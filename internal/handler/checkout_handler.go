package handler

import (
	"net/http"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/config"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/middleware"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /checkout のHTTP（引当 → 確定 or 取消）
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

// DI
func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type BeginCheckoutRequest struct {
	CheckoutID string `json:"checkout_id"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/checkout")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.begin)
	g.GET("/:id", h.status)
	g.POST("/:id/confirm", h.confirm)
	g.POST("/:id/cancel", h.cancel)
}

func (h *CheckoutHandler) begin(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req BeginCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Begin(c.Request().Context(), shopperID, usecase.BeginCheckoutInput{CheckoutID: req.CheckoutID})
	if err != nil {
		return writeError(c, err)
	}

	//再送は 200、新規は 201
	if out.Replayed {
		return c.JSON(http.StatusOK, out)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *CheckoutHandler) status(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Status(c.Request().Context(), shopperID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) confirm(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Complete(c.Request().Context(), shopperID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) cancel(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Abort(c.Request().Context(), shopperID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
