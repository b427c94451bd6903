package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
// 買い物客ごとにセッション（メモリ上のカート）を持ち、変更のたびに保存先へ書き出す。
type CartUsecase struct {
	storage  repo.CartStorage
	products repo.ProductRepository
	clock    Clock
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*cartSession
}

// 1 人分のカート。mu で変更を直列化する。
type cartSession struct {
	mu       sync.Mutex
	cart     model.Cart
	loaded   bool
	closed   bool // ログアウト済み（使わずに取り直す）
	dirty    bool // 最後の保存に失敗している
	lastUsed time.Time
}

func NewCartUsecase(storage repo.CartStorage, products repo.ProductRepository, clock Clock, m *metrics.Metrics) *CartUsecase {
	return &CartUsecase{
		storage:  storage,
		products: products,
		clock:    clock,
		metrics:  m,
		sessions: map[string]*cartSession{},
	}
}

type AddItemInput struct {
	ProductID  string
	VariantKey string
	Quantity   int64
	Metadata   map[string]string
}

type SetQuantityInput struct {
	ProductID  string
	VariantKey string
	Quantity   int64
}

type RemoveItemInput struct {
	ProductID  string
	VariantKey string
}

// 保存先に書く形（{items, total, itemCount}）
type storedCart struct {
	Items     []json.RawMessage `json:"items"`
	Total     decimal.Decimal   `json:"total"`
	ItemCount int64             `json:"itemCount"`
}

func CartStorageKey(shopperID string) string {
	return "cart:" + shopperID
}

// 現在のカート（初回は保存先から復元）
func (u *CartUsecase) GetCart(ctx context.Context, shopperID string) (model.Cart, error) {
	if shopperID == "" {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	for {
		s := u.session(shopperID)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			continue
		}
		if err := u.hydrate(ctx, shopperID, s); err != nil {
			s.mu.Unlock()
			return model.Cart{}, err
		}
		s.lastUsed = u.clock.Now()
		c := s.cart
		s.mu.Unlock()
		return c, nil
	}
}

// カートに追加（同じ商品・サイズは数量加算）。単価は商品マスタの現在値。
func (u *CartUsecase) AddItem(ctx context.Context, shopperID string, in AddItemInput) (model.Cart, error) {
	if shopperID == "" {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	// 商品チェック（公開のみ）
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if err != nil {
		return model.Cart{}, unavailable(err)
	}
	if !p.IsActive {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	item := model.CartLineItem{
		ProductID:  productID,
		VariantKey: strings.TrimSpace(in.VariantKey),
		UnitPrice:  p.Price,
		Quantity:   in.Quantity,
		Metadata:   in.Metadata,
	}
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	if _, ok := item.Metadata["name"]; !ok && p.Name != "" {
		item.Metadata["name"] = p.Name
	}

	return u.mutate(ctx, shopperID, "add", func(c model.Cart) model.Cart {
		return c.AddItem(item)
	})
}

// 明細削除（無ければ何もしない）
func (u *CartUsecase) RemoveItem(ctx context.Context, shopperID string, in RemoveItemInput) (model.Cart, error) {
	if shopperID == "" {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	variant := strings.TrimSpace(in.VariantKey)

	return u.mutate(ctx, shopperID, "remove", func(c model.Cart) model.Cart {
		return c.RemoveItem(productID, variant)
	})
}

// 数量変更（0 なら削除）
func (u *CartUsecase) SetQuantity(ctx context.Context, shopperID string, in SetQuantityInput) (model.Cart, error) {
	if shopperID == "" {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 0 {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	variant := strings.TrimSpace(in.VariantKey)

	return u.mutate(ctx, shopperID, "set_quantity", func(c model.Cart) model.Cart {
		return c.SetQuantity(productID, variant, in.Quantity)
	})
}

func (u *CartUsecase) Clear(ctx context.Context, shopperID string) (model.Cart, error) {
	if shopperID == "" {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.mutate(ctx, shopperID, "clear", func(c model.Cart) model.Cart {
		return c.Clear()
	})
}

// ログアウト。メモリ上のセッションを捨て、保存済みのカートも消す。
func (u *CartUsecase) Logout(ctx context.Context, shopperID string) error {
	if shopperID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	s := u.session(shopperID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.cart = model.EmptyCart()
	u.metrics.CartMutations.WithLabelValues("logout").Inc()

	// 保存先を消してからセッションを外す（次のセッションが古いカートを読まないように）
	err := u.storage.Delete(ctx, CartStorageKey(shopperID))

	u.mu.Lock()
	if u.sessions[shopperID] == s {
		delete(u.sessions, shopperID)
	}
	u.mu.Unlock()

	if err != nil {
		return u.persistFailed(ctx, shopperID, err)
	}
	return nil
}

// 一定時間使われていないセッションをメモリから外す。
// 保存に失敗したままのセッションは残す（外すと変更が消える）。
func (u *CartUsecase) EvictIdle(idle time.Duration) int {
	cutoff := u.clock.Now().Add(-idle)

	u.mu.Lock()
	defer u.mu.Unlock()

	n := 0
	for id, s := range u.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if !s.dirty && s.lastUsed.Before(cutoff) {
			s.closed = true
			delete(u.sessions, id)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (u *CartUsecase) session(shopperID string) *cartSession {
	u.mu.Lock()
	defer u.mu.Unlock()

	s, ok := u.sessions[shopperID]
	if !ok {
		s = &cartSession{}
		u.sessions[shopperID] = s
	}
	return s
}

// 変更を適用してから保存する。保存に失敗しても変更は残す。
func (u *CartUsecase) mutate(ctx context.Context, shopperID, op string, fn func(model.Cart) model.Cart) (model.Cart, error) {
	for {
		s := u.session(shopperID)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			continue
		}

		// 読めていないカートに上書き保存しない
		if err := u.hydrate(ctx, shopperID, s); err != nil {
			s.mu.Unlock()
			return model.Cart{}, err
		}
		s.cart = fn(s.cart)
		s.lastUsed = u.clock.Now()
		u.metrics.CartMutations.WithLabelValues(op).Inc()

		next := s.cart
		err := u.persist(ctx, shopperID, next)
		s.dirty = err != nil
		s.mu.Unlock()

		if err != nil {
			return next, u.persistFailed(ctx, shopperID, err)
		}
		return next, nil
	}
}

// 初回アクセス時だけ保存先から読み込む。
// 無い・壊れている場合は空カートで始める。
// 保存先に届かない場合は未読込のまま ErrCartUnavailable を返し、次のアクセスで読み直す。
func (u *CartUsecase) hydrate(ctx context.Context, shopperID string, s *cartSession) error {
	if s.loaded {
		return nil
	}

	raw, err := u.storage.Load(ctx, CartStorageKey(shopperID))
	if errors.Is(err, repo.ErrNotFound) {
		s.cart = model.EmptyCart()
		s.loaded = true
		return nil
	}
	if err != nil {
		u.metrics.CartLoadFailures.Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Str("shopper_id", shopperID).Msg("cart load failed")
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	s.cart = model.EmptyCart()
	s.loaded = true
	items, err := decodeStoredCart(raw)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("shopper_id", shopperID).Msg("stored cart is malformed, starting empty")
		return nil
	}
	s.cart = model.Hydrate(items)
	return nil
}

func (u *CartUsecase) persist(ctx context.Context, shopperID string, c model.Cart) error {
	raw, err := encodeStoredCart(c)
	if err != nil {
		return err
	}
	return u.storage.Save(ctx, CartStorageKey(shopperID), raw)
}

func (u *CartUsecase) persistFailed(ctx context.Context, shopperID string, err error) error {
	u.metrics.CartPersistFailures.Inc()
	zerolog.Ctx(ctx).Warn().Err(err).Str("shopper_id", shopperID).Msg("cart persistence failed")
	return &PersistenceError{ShopperID: shopperID, Err: err}
}

func encodeStoredCart(c model.Cart) ([]byte, error) {
	doc := storedCart{
		Items:     make([]json.RawMessage, 0, len(c.Items)),
		Total:     c.Total,
		ItemCount: c.ItemCount,
	}
	for _, it := range c.Items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, b)
	}
	return json.Marshal(doc)
}

// 明細単位で読み、壊れた明細は飛ばす。合計は Hydrate で計算し直すので読まない。
func decodeStoredCart(raw []byte) ([]model.CartLineItem, error) {
	var doc struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	items := make([]model.CartLineItem, 0, len(doc.Items))
	for _, r := range doc.Items {
		var it model.CartLineItem
		if err := json.Unmarshal(r, &it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}
