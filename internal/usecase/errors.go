package usecase

import (
	"errors"
	"fmt"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 保存済みカートを読めなかった（無い・壊れているとは区別する）
var ErrCartUnavailable = errors.New("cart storage unavailable")

// カートの保存に失敗した。メモリ上の変更は戻さない（呼び出し側には成功として返してよい）。
type PersistenceError struct {
	ShopperID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cart for %s: %v", e.ShopperID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func AsPersistenceError(err error) (*PersistenceError, bool) {
	var pe *PersistenceError
	ok := errors.As(err, &pe)
	return pe, ok
}

// 業務エラー以外は在庫コラボレータ不通として扱う（fail closed）
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrInventoryUnavailable) {
		return err
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	if _, ok := model.AsInsufficientStock(err); ok {
		return err
	}
	if errors.Is(err, model.ErrReservationExpired) || errors.Is(err, model.ErrReservationClosed) || errors.Is(err, model.ErrStockBelowReserved) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrInventoryUnavailable, err)
}
