package model

import (
	"errors"
	"fmt"
)

var (
	// 在庫コラボレータに届かない／失敗した。引当は成立していない扱い。
	ErrInventoryUnavailable = errors.New("inventory unavailable")

	ErrReservationExpired = errors.New("reservation expired")
	ErrReservationClosed  = errors.New("reservation closed")

	// 引当中の数量より少ない在庫数は設定できない
	ErrStockBelowReserved = errors.New("stock below reserved quantity")
)

// 在庫不足。利用者が数量を減らせば回復できる。
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	ok := errors.As(err, &ise)
	return ise, ok
}
