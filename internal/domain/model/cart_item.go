package model

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidLineItem = errors.New("cart: invalid line item")

// カートの明細
// (ProductID, VariantKey) が同一性。Metadata は表示用で同一性に関わらない。
type CartLineItem struct {
	ProductID  string            `json:"product_id"`
	VariantKey string            `json:"variant_key"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Quantity   int64             `json:"quantity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type CartKey struct {
	ProductID  string
	VariantKey string
}

func (it CartLineItem) Key() CartKey {
	return CartKey{ProductID: it.ProductID, VariantKey: it.VariantKey}
}

// 小計（単価×数量）
func (it CartLineItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
}

// AddItem に渡せる明細かを確認する。
func ValidateLineItem(item CartLineItem) error {
	if strings.TrimSpace(item.ProductID) == "" {
		return ErrInvalidLineItem
	}
	if item.Quantity < 1 {
		return ErrInvalidLineItem
	}
	if item.UnitPrice.IsNegative() {
		return ErrInvalidLineItem
	}
	return nil
}

func cloneLineItem(it CartLineItem) CartLineItem {
	if it.Metadata != nil {
		md := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			md[k] = v
		}
		it.Metadata = md
	}
	return it
}
