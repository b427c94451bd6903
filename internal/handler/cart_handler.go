package handler

import (
	"net/http"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/config"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/middleware"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartItemRequest struct {
	ProductID  string            `json:"product_id"`
	VariantKey string            `json:"variant_key"`
	Quantity   int64             `json:"quantity"`
	Metadata   map[string]string `json:"metadata"`
}

type UpdateCartItemRequest struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key"`
	Quantity   int64  `json:"quantity"`
}

type RemoveCartItemRequest struct {
	ProductID  string `query:"product_id"`
	VariantKey string `query:"variant_key"`
}

// persisted=false は保存に失敗した（メモリ上の変更は有効）
type CartResponse struct {
	model.Cart
	Persisted bool `json:"persisted"`
}

// /cart, /session/logout を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	auth := middleware.AuthJWT(cfg)

	g := e.Group("/cart")
	g.Use(auth)

	g.GET("", h.getCart)
	g.DELETE("", h.clear)
	g.POST("/items", h.addItem)
	g.PATCH("/items", h.updateItem)
	g.DELETE("/items", h.removeItem)

	e.POST("/session/logout", h.logout, auth)
}

func (h *CartHandler) getCart(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetCart(c.Request().Context(), shopperID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, CartResponse{Cart: out, Persisted: true})
}

func (h *CartHandler) addItem(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.AddItem(c.Request().Context(), shopperID, usecase.AddItemInput{
		ProductID:  req.ProductID,
		VariantKey: req.VariantKey,
		Quantity:   req.Quantity,
		Metadata:   req.Metadata,
	})
	return writeCart(c, out, err)
}

func (h *CartHandler) updateItem(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.SetQuantity(c.Request().Context(), shopperID, usecase.SetQuantityInput{
		ProductID:  req.ProductID,
		VariantKey: req.VariantKey,
		Quantity:   req.Quantity,
	})
	return writeCart(c, out, err)
}

func (h *CartHandler) removeItem(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req RemoveCartItemRequest
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), shopperID, usecase.RemoveItemInput{
		ProductID:  req.ProductID,
		VariantKey: req.VariantKey,
	})
	return writeCart(c, out, err)
}

func (h *CartHandler) clear(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Clear(c.Request().Context(), shopperID)
	return writeCart(c, out, err)
}

func (h *CartHandler) logout(c echo.Context) error {
	shopperID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	err := h.uc.Logout(c.Request().Context(), shopperID)
	if _, ok := usecase.AsPersistenceError(err); ok {
		// セッションは捨てた。保存先の掃除は TTL に任せる。
		return c.JSON(http.StatusOK, SuccessResponse{Message: "logged out"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "logged out"})
}

// 保存失敗は 200 のまま persisted=false で返す
func writeCart(c echo.Context, out model.Cart, err error) error {
	if _, ok := usecase.AsPersistenceError(err); ok {
		return c.JSON(http.StatusOK, CartResponse{Cart: out, Persisted: false})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, CartResponse{Cart: out, Persisted: true})
}
