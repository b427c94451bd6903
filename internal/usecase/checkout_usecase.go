package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"

	"github.com/rs/zerolog"
)

// チェックアウトの流れ（カート → 引当 → 決済結果で確定 or 解放）。
// 決済そのものはフロント側で行い、結果だけ受け取る。
type CheckoutUsecase struct {
	carts        *CartUsecase
	reservations *ReservationUsecase
	idGen        IDGenerator
}

func NewCheckoutUsecase(carts *CartUsecase, reservations *ReservationUsecase, idGen IDGenerator) *CheckoutUsecase {
	return &CheckoutUsecase{carts: carts, reservations: reservations, idGen: idGen}
}

type BeginCheckoutInput struct {
	// 再送キー。空ならサーバーで採番する（再送しても同じ引当にはならない）。
	CheckoutID string
}

type CheckoutOutput struct {
	Reservation model.Reservation `json:"reservation"`
	Cart        model.Cart        `json:"cart"`
	Replayed    bool              `json:"replayed"`
}

// 今のカートの中身で在庫を引き当てる。カートはまだ空にしない。
func (u *CheckoutUsecase) Begin(ctx context.Context, shopperID string, in BeginCheckoutInput) (CheckoutOutput, error) {
	if shopperID == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.carts.GetCart(ctx, shopperID)
	if err != nil {
		return CheckoutOutput{}, err
	}
	if cart.IsEmpty() {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}

	checkoutID := strings.TrimSpace(in.CheckoutID)
	if checkoutID == "" {
		checkoutID = u.idGen.NewID()
	}

	res, err := u.reservations.Reserve(ctx, ReserveInput{
		CheckoutID: checkoutID,
		ShopperID:  shopperID,
		Items:      cart.StockRequests(),
	})
	if err != nil {
		return CheckoutOutput{}, err
	}

	return CheckoutOutput{Reservation: res.Reservation, Cart: cart, Replayed: res.Replayed}, nil
}

// 決済成功。引当を確定してカートを空にする。
// カートの保存失敗はログだけ（確定は取り消さない）。
func (u *CheckoutUsecase) Complete(ctx context.Context, shopperID, reservationID string) (CheckoutOutput, error) {
	if shopperID == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	res, err := u.reservations.Confirm(ctx, shopperID, reservationID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	cart, err := u.carts.Clear(ctx, shopperID)
	if err != nil {
		_, persistErr := AsPersistenceError(err)
		if !persistErr && !errors.Is(err, ErrCartUnavailable) {
			return CheckoutOutput{}, err
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("reservation_id", res.ID).Msg("cart clear after checkout not persisted")
	}

	return CheckoutOutput{Reservation: res, Cart: cart}, nil
}

// 決済失敗・キャンセル。引当を解放する。カートはそのまま（やり直せるように）。
func (u *CheckoutUsecase) Abort(ctx context.Context, shopperID, reservationID string) (CheckoutOutput, error) {
	if shopperID == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	res, err := u.reservations.Release(ctx, shopperID, reservationID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	// 解放は済んでいるので、カートが読めなくても成功として返す
	cart, err := u.carts.GetCart(ctx, shopperID)
	if errors.Is(err, ErrCartUnavailable) {
		return CheckoutOutput{Reservation: res, Cart: model.EmptyCart()}, nil
	}
	if err != nil {
		return CheckoutOutput{}, err
	}
	return CheckoutOutput{Reservation: res, Cart: cart}, nil
}

// 引当の状態確認
func (u *CheckoutUsecase) Status(ctx context.Context, shopperID, reservationID string) (model.Reservation, error) {
	if shopperID == "" {
		return model.Reservation{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.reservations.Get(ctx, shopperID, reservationID)
}
