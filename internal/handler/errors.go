package handler

import (
	"errors"
	"net/http"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// 在庫不足（409）。どの商品がいくつ足りないかを返す。
type InsufficientStockResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}
	if ise, ok := model.AsInsufficientStock(err); ok {
		return c.JSON(http.StatusConflict, InsufficientStockResponse{
			Error:     "insufficient stock",
			ProductID: ise.ProductID,
			Requested: ise.Requested,
			Available: ise.Available,
		})
	}

	switch {
	case errors.Is(err, model.ErrReservationExpired):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation expired"})
	case errors.Is(err, model.ErrReservationClosed):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation closed"})
	case errors.Is(err, model.ErrStockBelowReserved):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "stock below reserved quantity"})
	case errors.Is(err, model.ErrInventoryUnavailable):
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("inventory unavailable")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "inventory unavailable"})
	case errors.Is(err, usecase.ErrCartUnavailable):
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("cart storage unavailable")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "cart storage unavailable"})
	}

	//500
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("unhandled error")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
