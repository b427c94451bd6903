package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// 在庫の参照と管理者操作（在庫数設定・強制解放・商品登録）。
// 管理者操作は必ず監査ログを同じ Tx で残す。
type InventoryUsecase struct {
	tx           repo.TransactionManager
	inventory    repo.InventoryRepository
	reservations repo.ReservationRepository
	auditLogs    repo.AuditLogRepository
	clock        Clock
	metrics      *metrics.Metrics
}

// DI
func NewInventoryUsecase(
	tx repo.TransactionManager,
	inventory repo.InventoryRepository,
	reservations repo.ReservationRepository,
	auditLogs repo.AuditLogRepository,
	clock Clock,
	m *metrics.Metrics,
) *InventoryUsecase {
	return &InventoryUsecase{
		tx:           tx,
		inventory:    inventory,
		reservations: reservations,
		auditLogs:    auditLogs,
		clock:        clock,
		metrics:      m,
	}
}

type StockOutput struct {
	ProductID        string `json:"product_id"`
	StockQuantity    int64  `json:"stock_quantity"`
	ReservedQuantity int64  `json:"reserved_quantity"`
	Available        int64  `json:"available"`
}

func (u *InventoryUsecase) GetStock(ctx context.Context, productID string) (StockOutput, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	level, err := u.inventory.GetStock(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return StockOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return StockOutput{}, unavailable(err)
	}
	return toStockOutput(level), nil
}

type UpsertProductInput struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	IsActive  bool
}

// 商品マスタの登録・更新（在庫数は UpdateStock で別に設定する）
func (u *InventoryUsecase) UpsertProduct(ctx context.Context, actorID string, in UpsertProductInput) (model.Product, error) {
	if actorID == "" {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id := strings.TrimSpace(in.ProductID)
	if id == "" || len(id) > 64 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if in.Price.IsNegative() {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}

	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, id)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		existed := err == nil

		p, err := r.Products().Upsert(ctx, model.Product{
			ID:       id,
			Name:     name,
			Price:    in.Price.Round(2),
			IsActive: in.IsActive,
		})
		if err != nil {
			return err
		}

		beforeJSON := ""
		if existed {
			beforeJSON = mustJSON(productSnapshot(before))
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actorID,
			Action:       model.AuditActionUpsertProduct,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   id,
			BeforeJSON:   beforeJSON,
			AfterJSON:    mustJSON(productSnapshot(p)),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return err
		}

		out = p
		return nil
	})
	if err != nil {
		return model.Product{}, unavailable(err)
	}
	return out, nil
}

type UpdateStockInput struct {
	ProductID string
	NewStock  int64
	Reason    string
}

// 在庫の現在値を設定し、調整履歴と監査ログを残す。
// 引当中の数量を下回る値は 409。
func (u *InventoryUsecase) UpdateStock(ctx context.Context, actorID string, in UpdateStockInput) (StockOutput, error) {
	if actorID == "" {
		return StockOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return StockOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if in.NewStock < 0 {
		return StockOutput{}, NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return StockOutput{}, NewHTTPError(http.StatusBadRequest, "reason required")
	}

	var out StockOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		before, err := r.Inventory().GetStock(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return err
		}

		//在庫の現在値を更新
		if err := r.Inventory().SetStock(ctx, productID, in.NewStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return err
		}

		//履歴を作成（差分）
		now := u.clock.Now()
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: productID,
			ActorID:   actorID,
			Delta:     in.NewStock - before.StockQuantity,
			Reason:    reason,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		after := before
		after.StockQuantity = in.NewStock

		//監査ログを作成（在庫更新）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actorID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   mustJSON(before),
			AfterJSON:    mustJSON(after),
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		out = toStockOutput(after)
		return nil
	})
	if err != nil {
		return StockOutput{}, unavailable(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("actor_id", actorID).
		Str("product_id", productID).
		Int64("stock", in.NewStock).
		Msg("stock updated")
	return out, nil
}

type ForceReleaseInput struct {
	Items  []model.StockRequest
	Reason string
}

// 引当数を指定数だけ強制的に戻す（0 未満にはしない）。
// 引当レコードと食い違った引当数を直す運用向け。
func (u *InventoryUsecase) ForceRelease(ctx context.Context, actorID string, in ForceReleaseInput) ([]StockOutput, error) {
	if actorID == "" {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateStockRequests(in.Items); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "reason required")
	}
	reqs := model.AggregateStockRequests(in.Items)

	var out []StockOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		out = make([]StockOutput, 0, len(reqs))
		now := u.clock.Now()

		for _, req := range reqs {
			before, err := r.Inventory().GetStock(ctx, req.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "product not found: "+req.ProductID)
			}
			if err != nil {
				return err
			}

			if err := r.Inventory().Release(ctx, req.ProductID, req.Quantity); err != nil {
				return err
			}

			after, err := r.Inventory().GetStock(ctx, req.ProductID)
			if err != nil {
				return err
			}

			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorID:      actorID,
				Action:       model.AuditActionForceRelease,
				ResourceType: model.AuditResourceProduct,
				ResourceID:   req.ProductID,
				BeforeJSON:   mustJSON(before),
				AfterJSON:    mustJSON(map[string]interface{}{"reserved_quantity": after.ReservedQuantity, "reason": reason}),
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			out = append(out, toStockOutput(after))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	u.metrics.Releases.WithLabelValues(metrics.ReasonAdmin).Inc()
	zerolog.Ctx(ctx).Warn().Str("actor_id", actorID).Int("items", len(reqs)).Str("reason", reason).Msg("reserved quantity force-released")
	return out, nil
}

type ListReservationsInput struct {
	ShopperID string
	Status    string
	Limit     int
	Offset    int
}

func (u *InventoryUsecase) ListReservations(ctx context.Context, in ListReservationsInput) ([]model.Reservation, error) {
	f := repo.ReservationFilter{
		ShopperID: strings.TrimSpace(in.ShopperID),
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	if in.Limit < 0 || in.Limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.Offset < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	if s := strings.ToUpper(strings.TrimSpace(in.Status)); s != "" {
		st := model.ReservationStatus(s)
		switch st {
		case model.ReservationStatusReserved, model.ReservationStatusCommitted, model.ReservationStatusReleased, model.ReservationStatusExpired:
		default:
			return nil, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = &st
	}

	list, err := u.reservations.List(ctx, f)
	if err != nil {
		return nil, unavailable(err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return list, nil
}

func (u *InventoryUsecase) ListAuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	logs, err := u.auditLogs.List(ctx, f)
	if err != nil {
		return nil, unavailable(err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}

func toStockOutput(l model.StockLevel) StockOutput {
	return StockOutput{
		ProductID:        l.ProductID,
		StockQuantity:    l.StockQuantity,
		ReservedQuantity: l.ReservedQuantity,
		Available:        l.Available(),
	}
}

func productSnapshot(p model.Product) map[string]interface{} {
	return map[string]interface{}{
		"name":      p.Name,
		"price":     p.Price.StringFixed(2),
		"is_active": p.IsActive,
	}
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
