package repository

import (
	"context"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
)

// 管理者用の引当一覧の条件
type ReservationFilter struct {
	ShopperID string
	Status    *model.ReservationStatus
	Limit     int
	Offset    int
}

type ReservationRepository interface {
	// 明細ごと保存する。CheckoutID の重複は ErrDuplicateCheckout。
	Create(ctx context.Context, r model.Reservation) error
	FindByID(ctx context.Context, id string) (model.Reservation, error)

	//検索（同じキーなら同じ結果を返す）
	FindByCheckoutID(ctx context.Context, checkoutID string) (model.Reservation, bool, error)

	// 状態が from のときだけ to へ進める。false は他で既に遷移済み。
	TransitionStatus(ctx context.Context, id string, from, to model.ReservationStatus) (bool, error)

	// 期限切れの RESERVED を古い順に返す
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)

	List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
}
