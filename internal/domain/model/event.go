package model

import "time"

type ReservationEventType string

const (
	EventReservationReserved  ReservationEventType = "reservation.reserved"
	EventReservationCommitted ReservationEventType = "reservation.committed"
	EventReservationReleased  ReservationEventType = "reservation.released"
	EventReservationExpired   ReservationEventType = "reservation.expired"
)

// 引当のライフサイクルイベント（通知・ERP 連携側が購読する）
type ReservationEvent struct {
	Type          ReservationEventType `json:"type"`
	ReservationID string               `json:"reservation_id"`
	CheckoutID    string               `json:"checkout_id"`
	ShopperID     string               `json:"shopper_id"`
	Items         []StockRequest       `json:"items"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func NewReservationEvent(t ReservationEventType, r Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          t,
		ReservationID: r.ID,
		CheckoutID:    r.CheckoutID,
		ShopperID:     r.ShopperID,
		Items:         r.StockRequests(),
		OccurredAt:    at,
	}
}
