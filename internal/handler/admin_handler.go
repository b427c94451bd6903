package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/config"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/middleware"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// ProductUpsertRequest は商品マスタの登録・更新の入力です。
type ProductUpsertRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}

// InventoryUpdateRequest は在庫更新の入力です。
type InventoryUpdateRequest struct {
	Stock  *int64 `json:"stock"`
	Reason string `json:"reason"`
}

type ForceReleaseRequest struct {
	Items  []StockRequestBody `json:"items"`
	Reason string             `json:"reason"`
}

// /admin/products, /admin/inventory, /admin/reservations, /admin/audit-logs をまとめる
type AdminHandler struct {
	uc *usecase.InventoryUsecase
}

// DI
func NewAdminHandler(uc *usecase.InventoryUsecase) *AdminHandler {
	return &AdminHandler{uc: uc}
}

// adminを登録
func (h *AdminHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin")

	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.PUT("/products/:product_id", h.upsertProduct)
	admin.PUT("/inventory/:product_id", h.updateInventory)
	admin.POST("/inventory/release", h.forceRelease)
	admin.GET("/reservations", h.listReservations)
	admin.GET("/audit-logs", h.listAuditLogs)
}

func (h *AdminHandler) upsertProduct(c echo.Context) error {
	var req ProductUpsertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.UpsertProduct(c.Request().Context(), adminID, usecase.UpsertProductInput{
		ProductID: c.Param("product_id"),
		Name:      req.Name,
		Price:     req.Price,
		IsActive:  req.IsActive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) updateInventory(c echo.Context) error {
	var req InventoryUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if req.Stock == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "stock required"})
	}

	adminID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.UpdateStock(c.Request().Context(), adminID, usecase.UpdateStockInput{
		ProductID: c.Param("product_id"),
		NewStock:  *req.Stock,
		Reason:    req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) forceRelease(c echo.Context) error {
	var req ForceReleaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := middleware.ShopperID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.ForceRelease(c.Request().Context(), adminID, usecase.ForceReleaseInput{
		Items:  toStockRequests(req.Items),
		Reason: req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) listReservations(c echo.Context) error {
	limit, offset, ok := pageParams(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid paging"})
	}

	out, err := h.uc.ListReservations(c.Request().Context(), usecase.ListReservationsInput{
		ShopperID: c.QueryParam("shopper_id"),
		Status:    c.QueryParam("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) listAuditLogs(c echo.Context) error {
	limit, offset, ok := pageParams(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid paging"})
	}

	f := repo.AuditLogFilter{
		Limit:      limit,
		Offset:     offset,
		ActorID:    strings.TrimSpace(c.QueryParam("actor_id")),
		ResourceID: strings.TrimSpace(c.QueryParam("resource_id")),
	}
	if v := strings.TrimSpace(c.QueryParam("resource_type")); v != "" {
		f.ResourceType = model.AuditResourceType(strings.ToLower(v))
	}
	// action=UPDATE_STOCK,FORCE_RELEASE
	for _, v := range strings.Split(c.QueryParam("action"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			f.Actions = append(f.Actions, model.AuditAction(strings.ToUpper(v)))
		}
	}
	if f.CreatedFrom, ok = timeParam(c, "from"); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
	}
	if f.CreatedTo, ok = timeParam(c, "to"); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
	}

	out, err := h.uc.ListAuditLogs(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// RFC3339 の日時（未指定は nil）
func timeParam(c echo.Context, key string) (*time.Time, bool) {
	v := c.QueryParam(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// limit / offset（未指定は 0）
func pageParams(c echo.Context) (int, int, bool) {
	limit, offset := 0, 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
