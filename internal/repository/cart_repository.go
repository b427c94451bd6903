package repository

import (
	"context"
)

// カートの永続化先（キーバリュー）。
// 値はシリアライズ済みの JSON。キーが無ければ ErrNotFound。
type CartStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
