package model

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// カート本体。
// Total と ItemCount は Items から毎回計算し直す（保存値は信用しない）。
// 遷移はすべて新しい Cart を返し、レシーバは変更しない。
type Cart struct {
	Items     []CartLineItem  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int64           `json:"item_count"`
}

func EmptyCart() Cart {
	return Cart{Items: []CartLineItem{}, Total: decimal.Zero}
}

// 同じ (productId, variantKey) があれば数量加算、無ければ末尾に追加。
// 不正な明細は呼び出し側のバグなので panic する。
func (c Cart) AddItem(item CartLineItem) Cart {
	if err := ValidateLineItem(item); err != nil {
		panic(fmt.Sprintf("cart.AddItem: %v: %+v", err, item))
	}

	items := cloneItems(c.Items)
	if idx := indexOf(items, item.Key()); idx >= 0 {
		items[idx].Quantity += item.Quantity
		return newCart(items)
	}

	return newCart(append(items, cloneLineItem(item)))
}

// 明細を数量に関係なく削除。無ければ何もしない。
func (c Cart) RemoveItem(productID, variantKey string) Cart {
	key := CartKey{ProductID: productID, VariantKey: variantKey}
	idx := indexOf(c.Items, key)
	if idx < 0 {
		return c
	}

	items := make([]CartLineItem, 0, len(c.Items)-1)
	for i, it := range c.Items {
		if i == idx {
			continue
		}
		items = append(items, cloneLineItem(it))
	}
	return newCart(items)
}

// 0 なら削除、正なら置き換え。無ければ何もしない。
func (c Cart) SetQuantity(productID, variantKey string, quantity int64) Cart {
	if quantity < 0 {
		panic(fmt.Sprintf("cart.SetQuantity: negative quantity %d", quantity))
	}
	if quantity == 0 {
		return c.RemoveItem(productID, variantKey)
	}

	idx := indexOf(c.Items, CartKey{ProductID: productID, VariantKey: variantKey})
	if idx < 0 {
		return c
	}

	items := cloneItems(c.Items)
	items[idx].Quantity = quantity
	return newCart(items)
}

func (c Cart) Clear() Cart {
	return EmptyCart()
}

// 保存済みの明細を空カートへ AddItem で積み直す。
// 合計の計算経路をライブ操作と一本化するため。不正な明細は読み飛ばす。
func Hydrate(persisted []CartLineItem) Cart {
	c := EmptyCart()
	for _, it := range persisted {
		if ValidateLineItem(it) != nil {
			continue
		}
		c = c.AddItem(it)
	}
	return c
}

// 在庫引当用に productId 単位で数量をまとめる（サイズ違いは合算）。
func (c Cart) StockRequests() []StockRequest {
	reqs := make([]StockRequest, 0, len(c.Items))
	for _, it := range c.Items {
		reqs = append(reqs, StockRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return AggregateStockRequests(reqs)
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func newCart(items []CartLineItem) Cart {
	total := decimal.Zero
	var count int64
	for _, it := range items {
		total = total.Add(it.Subtotal())
		count += it.Quantity
	}
	return Cart{Items: items, Total: total, ItemCount: count}
}

func indexOf(items []CartLineItem, key CartKey) int {
	for i := range items {
		if items[i].Key() == key {
			return i
		}
	}
	return -1
}

func cloneItems(src []CartLineItem) []CartLineItem {
	out := make([]CartLineItem, 0, len(src)+1)
	for _, it := range src {
		out = append(out, cloneLineItem(it))
	}
	return out
}

// 引当の単位（productId と数量）
type StockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// 同一 productId をまとめ、productId 昇順で返す。
// 行ロックの取得順を固定してデッドロックを避ける。
func AggregateStockRequests(reqs []StockRequest) []StockRequest {
	if len(reqs) == 0 {
		return []StockRequest{}
	}

	sum := map[string]int64{}
	for _, r := range reqs {
		sum[r.ProductID] += r.Quantity
	}

	out := make([]StockRequest, 0, len(sum))
	for id, q := range sum {
		out = append(out, StockRequest{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
