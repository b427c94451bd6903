package model

import "time"

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// RESERVED からしか動かない。それ以外は終端。
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	if s != ReservationStatusReserved {
		return false
	}
	switch next {
	case ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusReserved
}

// チェックアウト単位の在庫引当。
// CheckoutID は再試行キー（同じキーなら同じ引当を返す）。
type Reservation struct {
	ID         string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CheckoutID string            `gorm:"type:varchar(255);not null;uniqueIndex" json:"checkout_id"`
	ShopperID  string            `gorm:"type:varchar(255);not null;index" json:"shopper_id"`
	Status     ReservationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Items      []ReservationItem `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE" json:"items"`
	ExpiresAt  time.Time         `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

type ReservationItem struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	ReservationID string `gorm:"type:varchar(36);not null;index" json:"-"`
	ProductID     string `gorm:"type:varchar(64);not null" json:"product_id"`
	Quantity      int64  `gorm:"not null" json:"quantity"`
}

func (r Reservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r Reservation) StockRequests() []StockRequest {
	out := make([]StockRequest, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, StockRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
