package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/memstore"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/storage"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDGen struct{ n int64 }

func (g *seqIDGen) NewID() string {
	return fmt.Sprintf("res-%04d", atomic.AddInt64(&g.n, 1))
}

// 送ったイベントを記録するだけ
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Types() []model.ReservationEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ReservationEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// 保存先のモック（失敗ケース用）
type CartStorageMock struct{ mock.Mock }

func (m *CartStorageMock) Load(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *CartStorageMock) Save(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *CartStorageMock) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// WithinTx を必ず失敗させる（DB 不通）
type failingTxManager struct{ err error }

func (m failingTxManager) WithinTx(context.Context, func(r repo.TxRepos) error) error {
	return m.err
}

type env struct {
	store     *memstore.Store
	carts     *usecase.CartUsecase
	reserve   *usecase.ReservationUsecase
	checkout  *usecase.CheckoutUsecase
	inventory *usecase.InventoryUsecase
	storage   *storage.MemoryStore
	clock     *fakeClock
	publisher *recordingPublisher
	metrics   *metrics.Metrics
}

func newEnv(t *testing.T, products ...model.Product) *env {
	t.Helper()

	e := &env{
		store:     memstore.New(),
		storage:   storage.NewMemoryStore(),
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
		metrics:   metrics.NewNop(),
	}
	e.store.Seed(products...)

	ids := &seqIDGen{}
	e.carts = usecase.NewCartUsecase(e.storage, e.store.Products(), e.clock, e.metrics)
	e.reserve = usecase.NewReservationUsecase(
		e.store, e.store.Inventory(), e.store.Reservations(), e.publisher, ids, e.clock, e.metrics,
		usecase.ReservationConfig{TTL: 15 * time.Minute, StockBuffer: 2},
	)
	e.checkout = usecase.NewCheckoutUsecase(e.carts, e.reserve, ids)
	e.inventory = usecase.NewInventoryUsecase(e.store, e.store.Inventory(), e.store.Reservations(), e.store.AuditLogs(), e.clock, e.metrics)
	return e
}

func (e *env) stock(t *testing.T, productID string) model.StockLevel {
	t.Helper()
	level, err := e.store.Inventory().GetStock(context.Background(), productID)
	if err != nil {
		t.Fatalf("get stock %s: %v", productID, err)
	}
	return level
}

func product(id string, price int64, stock int64) model.Product {
	return model.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
		IsActive:      true,
	}
}

func req(productID string, qty int64) model.StockRequest {
	return model.StockRequest{ProductID: productID, Quantity: qty}
}
