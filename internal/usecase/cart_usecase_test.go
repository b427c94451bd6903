package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/memstore"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"
)

func TestCartUsecase_AddItemPersistsSnapshot(t *testing.T) {
	e := newEnv(t, product("tee-001", 1500, 10))
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "tee-001", VariantKey: "M", Quantity: 1})
	require.NoError(t, err)
	c, err := e.carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "tee-001", VariantKey: "M", Quantity: 2})
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(3), c.Items[0].Quantity)
	assert.Equal(t, "Product tee-001", c.Items[0].Metadata["name"])
	assert.True(t, decimal.NewFromInt(4500).Equal(c.Total))

	raw, err := e.storage.Load(ctx, usecase.CartStorageKey("shopper-1"))
	require.NoError(t, err)

	var doc struct {
		Items     []json.RawMessage `json:"items"`
		Total     decimal.Decimal   `json:"total"`
		ItemCount int64             `json:"itemCount"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.Items, 1)
	assert.True(t, decimal.NewFromInt(4500).Equal(doc.Total))
	assert.Equal(t, int64(3), doc.ItemCount)
}

func TestCartUsecase_AddItemRejectsUnknownOrInactiveProduct(t *testing.T) {
	hidden := product("old-001", 100, 5)
	hidden.IsActive = false
	e := newEnv(t, product("tee-001", 1500, 10), hidden)

	tests := []struct {
		name string
		in   usecase.AddItemInput
	}{
		{name: "unknown", in: usecase.AddItemInput{ProductID: "ghost", Quantity: 1}},
		{name: "inactive", in: usecase.AddItemInput{ProductID: "old-001", Quantity: 1}},
		{name: "zero quantity", in: usecase.AddItemInput{ProductID: "tee-001", Quantity: 0}},
		{name: "blank product", in: usecase.AddItemInput{ProductID: "  ", Quantity: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.carts.AddItem(context.Background(), "shopper-1", tt.in)
			he, ok := usecase.AsHTTPError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, http.StatusBadRequest, he.Status)
		})
	}

	c, err := e.carts.GetCart(context.Background(), "shopper-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCartUsecase_SetQuantityAndRemove(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10), product("cap-002", 500, 10))
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "s", usecase.AddItemInput{ProductID: "tee-001", VariantKey: "M", Quantity: 1})
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, "s", usecase.AddItemInput{ProductID: "cap-002", Quantity: 2})
	require.NoError(t, err)

	c, err := e.carts.SetQuantity(ctx, "s", usecase.SetQuantityInput{ProductID: "tee-001", VariantKey: "M", Quantity: 4})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5000).Equal(c.Total))

	c, err = e.carts.SetQuantity(ctx, "s", usecase.SetQuantityInput{ProductID: "tee-001", VariantKey: "M", Quantity: 0})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	c, err = e.carts.RemoveItem(ctx, "s", usecase.RemoveItemInput{ProductID: "cap-002"})
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	// 無い明細の削除はそのまま
	c, err = e.carts.RemoveItem(ctx, "s", usecase.RemoveItemInput{ProductID: "cap-002"})
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCartUsecase_HydratesFromStorageOnce(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10))
	ctx := context.Background()

	// total は壊れているが明細から計算し直す。壊れた明細は飛ばす。
	stored := `{
		"items": [
			{"product_id":"tee-001","variant_key":"M","unit_price":"1000","quantity":2},
			{"product_id":"cap-002","variant_key":"F","unit_price":"500","quantity":1},
			"garbage",
			{"product_id":"tee-001","variant_key":"M","unit_price":"1000","quantity":1}
		],
		"total": "not-a-number",
		"itemCount": 999
	}`
	require.NoError(t, e.storage.Save(ctx, usecase.CartStorageKey("shopper-1"), []byte(stored)))

	c, err := e.carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, int64(4), c.ItemCount)
	assert.True(t, decimal.NewFromInt(3500).Equal(c.Total), "total=%s", c.Total)

	// 2 回目以降は保存先を見ない
	require.NoError(t, e.storage.Delete(ctx, usecase.CartStorageKey("shopper-1")))
	c, err = e.carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.ItemCount)
}

func TestCartUsecase_MalformedStorageStartsEmpty(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10))
	ctx := context.Background()
	require.NoError(t, e.storage.Save(ctx, usecase.CartStorageKey("shopper-1"), []byte("{not json")))

	c, err := e.carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total.IsZero())
}

func TestCartUsecase_PersistFailureKeepsChange(t *testing.T) {
	st := new(CartStorageMock)
	st.On("Load", mock.Anything, "cart:shopper-1").Return(nil, repo.ErrNotFound).Once()
	st.On("Save", mock.Anything, "cart:shopper-1", mock.Anything).Return(errors.New("redis: connection refused"))

	store := memstore.New()
	store.Seed(product("tee-001", 1000, 10))
	m := metrics.NewNop()
	carts := usecase.NewCartUsecase(st, store.Products(), newFakeClock(), m)
	ctx := context.Background()

	c, err := carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "tee-001", Quantity: 2})

	pe, ok := usecase.AsPersistenceError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "shopper-1", pe.ShopperID)
	assert.Equal(t, int64(2), c.ItemCount)

	// メモリ上は残っている
	again, err := carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.ItemCount)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartPersistFailures))
	st.AssertNumberOfCalls(t, "Load", 1)
}

func TestCartUsecase_LoadFailureDoesNotOverwriteStoredCart(t *testing.T) {
	stored := []byte(`{"items":[{"product_id":"tee-001","variant_key":"M","unit_price":"1000","quantity":3}],"total":"3000","itemCount":3}`)

	st := new(CartStorageMock)
	st.On("Load", mock.Anything, "cart:shopper-1").Return(nil, errors.New("dial tcp: connection refused")).Once()
	st.On("Load", mock.Anything, "cart:shopper-1").Return(stored, nil).Once()
	var saved []byte
	st.On("Save", mock.Anything, "cart:shopper-1", mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(2).([]byte) }).
		Return(nil)

	store := memstore.New()
	store.Seed(product("tee-001", 1000, 10), product("cap-002", 500, 10))
	m := metrics.NewNop()
	carts := usecase.NewCartUsecase(st, store.Products(), newFakeClock(), m)
	ctx := context.Background()

	// 読めない間は変更も保存もしない
	_, err := carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "cap-002", VariantKey: "F", Quantity: 1})
	require.ErrorIs(t, err, usecase.ErrCartUnavailable)
	st.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartLoadFailures))

	// 次のアクセスで読み直し、保存済みの明細に足す
	c, err := carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "cap-002", VariantKey: "F", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.ItemCount)
	assert.True(t, decimal.NewFromInt(3500).Equal(c.Total), "total=%s", c.Total)

	var doc struct {
		Items []model.CartLineItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(saved, &doc))
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "tee-001", doc.Items[0].ProductID)
	assert.Equal(t, int64(3), doc.Items[0].Quantity)

	st.AssertNumberOfCalls(t, "Load", 2)
}

func TestCartUsecase_GetCartLoadFailureRetries(t *testing.T) {
	st := new(CartStorageMock)
	st.On("Load", mock.Anything, "cart:shopper-1").Return(nil, errors.New("i/o timeout")).Once()
	st.On("Load", mock.Anything, "cart:shopper-1").Return(nil, repo.ErrNotFound).Once()

	store := memstore.New()
	carts := usecase.NewCartUsecase(st, store.Products(), newFakeClock(), metrics.NewNop())
	ctx := context.Background()

	_, err := carts.GetCart(ctx, "shopper-1")
	require.ErrorIs(t, err, usecase.ErrCartUnavailable)

	c, err := carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	st.AssertNumberOfCalls(t, "Load", 2)
}

func TestCartUsecase_ConcurrentAddsSerialize(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "tee-001", VariantKey: "M", Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := e.carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(50), c.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(50000).Equal(c.Total))
}

func TestCartUsecase_ShoppersAreIsolated(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10))
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "tee-001", Quantity: 1})
	require.NoError(t, err)

	other, err := e.carts.GetCart(ctx, "shopper-2")
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())
}

func TestCartUsecase_Logout(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10))
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "shopper-1", usecase.AddItemInput{ProductID: "tee-001", Quantity: 3})
	require.NoError(t, err)

	require.NoError(t, e.carts.Logout(ctx, "shopper-1"))

	_, err = e.storage.Load(ctx, usecase.CartStorageKey("shopper-1"))
	assert.ErrorIs(t, err, repo.ErrNotFound)

	c, err := e.carts.GetCart(ctx, "shopper-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCartUsecase_EvictIdle(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10))
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "idle", usecase.AddItemInput{ProductID: "tee-001", Quantity: 1})
	require.NoError(t, err)
	e.clock.Advance(45 * time.Minute)
	_, err = e.carts.AddItem(ctx, "active", usecase.AddItemInput{ProductID: "tee-001", Quantity: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, e.carts.EvictIdle(30*time.Minute))

	// 外したセッションも保存先から戻る
	c, err := e.carts.GetCart(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ItemCount)
}

func TestCartUsecase_EvictIdleKeepsUnsavedSessions(t *testing.T) {
	st := new(CartStorageMock)
	st.On("Load", mock.Anything, mock.Anything).Return(nil, repo.ErrNotFound)
	st.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout"))

	store := memstore.New()
	store.Seed(product("tee-001", 1000, 10))
	clock := newFakeClock()
	carts := usecase.NewCartUsecase(st, store.Products(), clock, metrics.NewNop())

	_, err := carts.AddItem(context.Background(), "shopper-1", usecase.AddItemInput{ProductID: "tee-001", Quantity: 1})
	require.Error(t, err)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, carts.EvictIdle(time.Minute))
}

func TestCartUsecase_RequiresShopper(t *testing.T) {
	e := newEnv(t)

	_, err := e.carts.GetCart(context.Background(), "")
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Status)

	assert.Error(t, e.carts.Logout(context.Background(), ""))
	_, err = e.carts.Clear(context.Background(), "")
	assert.Error(t, err)
}

// 保存先に書いた形から読み直すと同じカートになる
func TestCartUsecase_RoundTripThroughStorage(t *testing.T) {
	e := newEnv(t, product("tee-001", 1000, 10), product("cap-002", 500, 10))
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "s", usecase.AddItemInput{ProductID: "tee-001", VariantKey: "M", Quantity: 2, Metadata: map[string]string{"color": "green"}})
	require.NoError(t, err)
	want, err := e.carts.AddItem(ctx, "s", usecase.AddItemInput{ProductID: "cap-002", Quantity: 1})
	require.NoError(t, err)

	fresh := usecase.NewCartUsecase(e.storage, e.store.Products(), e.clock, metrics.NewNop())
	got, err := fresh.GetCart(ctx, "s")
	require.NoError(t, err)

	require.Len(t, got.Items, len(want.Items))
	assert.True(t, want.Total.Equal(got.Total))
	assert.Equal(t, want.ItemCount, got.ItemCount)
	assert.Equal(t, "green", got.Items[0].Metadata["color"])
	assert.Equal(t, model.CartKey{ProductID: "cap-002"}, got.Items[1].Key())
}
