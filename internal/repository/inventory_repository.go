package repository

import (
	"context"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
)

// 在庫コラボレータ。引当の原子性はここで担保する。
type InventoryRepository interface {
	// 在庫数と引当数の現在値
	GetStock(ctx context.Context, productID string) (model.StockLevel, error)

	// stock - reserved >= qty のときだけ reserved を加算。
	// false は在庫不足（商品が無い場合も含む）。
	TryReserve(ctx context.Context, productID string, qty int64) (bool, error)

	// reserved を減算（0 未満にはしない）
	Release(ctx context.Context, productID string, qty int64) error

	// 引当を確定して実在庫を減らす（stock -= qty, reserved -= qty）
	Commit(ctx context.Context, productID string, qty int64) (bool, error)

	// 在庫の現在値を設定。引当数を下回る値は ErrStockBelowReserved。
	SetStock(ctx context.Context, productID string, newStock int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
