package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 在庫を持つ商品（在庫コラボレータ側のレコード）。
// 0 <= reserved_quantity <= stock_quantity を常に守る。
type Product struct {
	ID               string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Price            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	StockQuantity    int64           `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
	ReservedQuantity int64           `gorm:"not null;default:0;check:reserved_quantity >= 0" json:"reserved_quantity"`
	IsActive         bool            `gorm:"not null;default:false" json:"is_active"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p Product) StockLevel() StockLevel {
	return StockLevel{
		ProductID:        p.ID,
		StockQuantity:    p.StockQuantity,
		ReservedQuantity: p.ReservedQuantity,
	}
}

// 在庫数と引当数
type StockLevel struct {
	ProductID        string `json:"product_id"`
	StockQuantity    int64  `json:"stock_quantity"`
	ReservedQuantity int64  `json:"reserved_quantity"`
}

// 販売可能数（負にはしない）
func (s StockLevel) Available() int64 {
	if a := s.StockQuantity - s.ReservedQuantity; a > 0 {
		return a
	}
	return 0
}
