package repository

import (
	"context"
	"errors"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found")

	// 同じ checkout_id の引当が既にある
	ErrDuplicateCheckout = errors.New("duplicate checkout id")
)

// 商品マスタの保存・取得を約束。
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (model.Product, error)

	// 無ければ作成、あれば名前・価格・公開状態を更新（在庫数は触らない）
	Upsert(ctx context.Context, p model.Product) (model.Product, error)
}
