package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/db"
	infraRepo "github.com/ibra-a/urbanjungle-website-sub000/internal/infra/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"
)

type gormRepositorySuite struct {
	suite.Suite

	container    *postgres.PostgresContainer
	db           *gorm.DB
	tx           *infraRepo.TxManagerGorm
	products     *infraRepo.ProductGormRepository
	inventory    *infraRepo.InventoryGormRepository
	reservations *infraRepo.ReservationGormRepository
	auditLogs    *infraRepo.AuditLogGormRepository
}

// entry point to run the tests in the suite
func TestGormRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}
	suite.Run(t, new(gormRepositorySuite))
}

// before all tests in the suite
func (s *gormRepositorySuite) SetupSuite() {
	ctx := s.T().Context()

	c, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.WithDatabase("urbanjungle"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = c

	connStr, err := c.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = gorm.Open(gormpg.Open(connStr), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(s.db))

	s.tx = infraRepo.NewTxManagerGorm(s.db)
	s.products = infraRepo.NewProductGormRepository(s.db)
	s.inventory = infraRepo.NewInventoryGormRepository(s.db)
	s.reservations = infraRepo.NewReservationGormRepository(s.db)
	s.auditLogs = infraRepo.NewAuditLogGormRepository(s.db)
}

// after all tests in the suite
func (s *gormRepositorySuite) TearDownSuite() {
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *gormRepositorySuite) SetupTest() {
	for _, table := range []string{"reservation_items", "reservations", "inventory_adjustments", "audit_logs", "products"} {
		s.Require().NoError(s.db.Exec("DELETE FROM " + table).Error)
	}
}

func (s *gormRepositorySuite) seed(id string, stock, reserved int64) {
	s.Require().NoError(s.db.Create(&model.Product{
		ID:               id,
		Name:             gofakeit.ProductName(),
		Price:            decimal.NewFromFloat(gofakeit.Price(100, 5000)).Round(2),
		StockQuantity:    stock,
		ReservedQuantity: reserved,
		IsActive:         true,
	}).Error)
}

func (s *gormRepositorySuite) level(id string) model.StockLevel {
	l, err := s.inventory.GetStock(s.T().Context(), id)
	s.Require().NoError(err)
	return l
}

func (s *gormRepositorySuite) TestTryReserve_Conditional() {
	ctx := s.T().Context()
	s.seed("tee-001", 5, 0)

	ok, err := s.inventory.TryReserve(ctx, "tee-001", 3)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.inventory.TryReserve(ctx, "tee-001", 3)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.inventory.TryReserve(ctx, "ghost", 1)
	s.Require().NoError(err)
	s.False(ok)

	s.Equal(int64(3), s.level("tee-001").ReservedQuantity)
}

func (s *gormRepositorySuite) TestTryReserve_ConcurrentNeverOversells() {
	ctx := s.T().Context()
	s.seed("cap-002", 10, 0)

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.inventory.TryReserve(ctx, "cap-002", 3)
			if err == nil && ok {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(3), successes.Load())
	s.Equal(int64(9), s.level("cap-002").ReservedQuantity)
}

func (s *gormRepositorySuite) TestRelease_ClampsAtZero() {
	ctx := s.T().Context()
	s.seed("tee-001", 5, 2)

	s.Require().NoError(s.inventory.Release(ctx, "tee-001", 7))
	s.Equal(int64(0), s.level("tee-001").ReservedQuantity)

	s.ErrorIs(s.inventory.Release(ctx, "ghost", 1), repo.ErrNotFound)
}

func (s *gormRepositorySuite) TestCommit() {
	ctx := s.T().Context()
	s.seed("tee-001", 5, 3)

	ok, err := s.inventory.Commit(ctx, "tee-001", 3)
	s.Require().NoError(err)
	s.True(ok)

	l := s.level("tee-001")
	s.Equal(int64(2), l.StockQuantity)
	s.Equal(int64(0), l.ReservedQuantity)

	ok, err = s.inventory.Commit(ctx, "tee-001", 1)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *gormRepositorySuite) TestSetStock() {
	ctx := s.T().Context()
	s.seed("tee-001", 10, 4)

	s.Require().NoError(s.inventory.SetStock(ctx, "tee-001", 4))
	s.ErrorIs(s.inventory.SetStock(ctx, "tee-001", 3), model.ErrStockBelowReserved)
	s.ErrorIs(s.inventory.SetStock(ctx, "ghost", 3), repo.ErrNotFound)
	s.Equal(int64(4), s.level("tee-001").StockQuantity)
}

func (s *gormRepositorySuite) TestProductUpsert_KeepsStock() {
	ctx := s.T().Context()
	s.seed("tee-001", 10, 2)

	p, err := s.products.Upsert(ctx, model.Product{ID: "tee-001", Name: "Jungle Tee", Price: decimal.NewFromInt(1200), IsActive: false})
	s.Require().NoError(err)
	s.Equal("Jungle Tee", p.Name)
	s.False(p.IsActive)
	s.Equal(int64(10), p.StockQuantity)
	s.Equal(int64(2), p.ReservedQuantity)

	created, err := s.products.Upsert(ctx, model.Product{ID: "fern-010", Name: "Fern Hoodie", Price: decimal.NewFromInt(4500), IsActive: true})
	s.Require().NoError(err)
	s.Equal(int64(0), created.StockQuantity)
}

func (s *gormRepositorySuite) TestReservation_Lifecycle() {
	ctx := s.T().Context()
	now := time.Now().UTC().Truncate(time.Microsecond)

	res := model.Reservation{
		ID:         gofakeit.UUID(),
		CheckoutID: "co-" + gofakeit.UUID(),
		ShopperID:  "shopper-1",
		Status:     model.ReservationStatusReserved,
		Items: []model.ReservationItem{
			{ProductID: "b", Quantity: 1},
			{ProductID: "a", Quantity: 2},
		},
		ExpiresAt: now.Add(-time.Minute),
	}
	s.Require().NoError(s.reservations.Create(ctx, res))

	dup := res
	dup.ID = gofakeit.UUID()
	dup.Items = nil
	s.ErrorIs(s.reservations.Create(ctx, dup), repo.ErrDuplicateCheckout)

	got, found, err := s.reservations.FindByCheckoutID(ctx, res.CheckoutID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(res.ID, got.ID)
	s.Require().Len(got.Items, 2)
	s.Equal("a", got.Items[0].ProductID)

	_, found, err = s.reservations.FindByCheckoutID(ctx, "missing")
	s.Require().NoError(err)
	s.False(found)

	expired, err := s.reservations.ListExpired(ctx, now, 10)
	s.Require().NoError(err)
	s.Len(expired, 1)

	ok, err := s.reservations.TransitionStatus(ctx, res.ID, model.ReservationStatusReserved, model.ReservationStatusExpired)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.reservations.TransitionStatus(ctx, res.ID, model.ReservationStatusReserved, model.ReservationStatusCommitted)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.reservations.FindByID(ctx, "missing")
	s.ErrorIs(err, repo.ErrNotFound)
}

func (s *gormRepositorySuite) TestAuditLogs_FilterAndOrder() {
	ctx := s.T().Context()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	entries := []model.AuditLog{
		{ActorID: "admin-1", Action: model.AuditActionUpsertProduct, ResourceType: model.AuditResourceProduct, ResourceID: "tee-001", CreatedAt: base},
		{ActorID: "admin-1", Action: model.AuditActionUpdateStock, ResourceType: model.AuditResourceProduct, ResourceID: "tee-001", CreatedAt: base.Add(time.Minute)},
		{ActorID: "admin-2", Action: model.AuditActionForceRelease, ResourceType: model.AuditResourceProduct, ResourceID: "cap-002", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		s.Require().NoError(s.auditLogs.Create(ctx, e))
	}

	all, err := s.auditLogs.List(ctx, repo.AuditLogFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(model.AuditActionForceRelease, all[0].Action)

	stockOps, err := s.auditLogs.List(ctx, repo.AuditLogFilter{
		Actions: []model.AuditAction{model.AuditActionUpdateStock, model.AuditActionForceRelease},
	})
	s.Require().NoError(err)
	s.Len(stockOps, 2)

	from := base.Add(30 * time.Second)
	byActor, err := s.auditLogs.List(ctx, repo.AuditLogFilter{ActorID: "admin-1", CreatedFrom: &from})
	s.Require().NoError(err)
	s.Require().Len(byActor, 1)
	s.Equal(model.AuditActionUpdateStock, byActor[0].Action)

	paged, err := s.auditLogs.List(ctx, repo.AuditLogFilter{Limit: 1, Offset: 2})
	s.Require().NoError(err)
	s.Require().Len(paged, 1)
	s.Equal(model.AuditActionUpsertProduct, paged[0].Action)
}

func (s *gormRepositorySuite) TestWithinTx_RollsBack() {
	ctx := s.T().Context()
	s.seed("tee-001", 5, 0)

	boom := errors.New("boom")
	err := s.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Inventory().TryReserve(ctx, "tee-001", 2)
		s.Require().NoError(err)
		s.Require().True(ok)
		return boom
	})
	s.ErrorIs(err, boom)
	s.Equal(int64(0), s.level("tee-001").ReservedQuantity)
}

func (s *gormRepositorySuite) TestWithinTx_CanceledContext() {
	ctx, cancel := context.WithCancel(s.T().Context())
	cancel()

	err := s.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Inventory().GetStock(ctx, "tee-001")
		return err
	})
	s.Error(err)
}

type testClock struct{}

func (testClock) Now() time.Time { return time.Now() }

type uuidGen struct{}

func (uuidGen) NewID() string { return gofakeit.UUID() }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.ReservationEvent) error { return nil }

// 5 個の在庫に 3 個ずつ 2 件同時に引当 → 1 件だけ通る
func (s *gormRepositorySuite) TestReserveUsecase_Exclusivity() {
	ctx := s.T().Context()
	s.seed("tee-001", 5, 0)

	uc := usecase.NewReservationUsecase(s.tx, s.inventory, s.reservations, nopPublisher{}, uuidGen{}, testClock{}, metrics.NewNop(),
		usecase.ReservationConfig{TTL: time.Minute})

	var (
		wg           sync.WaitGroup
		successes    atomic.Int64
		insufficient atomic.Int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Reserve(ctx, usecase.ReserveInput{
				CheckoutID: fmt.Sprintf("co-%d", i),
				ShopperID:  fmt.Sprintf("shopper-%d", i),
				Items:      []model.StockRequest{{ProductID: "tee-001", Quantity: 3}},
			})
			if err == nil {
				successes.Add(1)
				return
			}
			if _, ok := model.AsInsufficientStock(err); ok {
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), successes.Load())
	s.Equal(int64(1), insufficient.Load())
	s.Equal(int64(3), s.level("tee-001").ReservedQuantity)
}

// 同じ checkout_id を同時に送っても引当は 1 件
func (s *gormRepositorySuite) TestReserveUsecase_ConcurrentReplay() {
	ctx := s.T().Context()
	s.seed("tee-001", 10, 0)

	uc := usecase.NewReservationUsecase(s.tx, s.inventory, s.reservations, nopPublisher{}, uuidGen{}, testClock{}, metrics.NewNop(),
		usecase.ReservationConfig{TTL: time.Minute})

	ids := make([]string, 6)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := uc.Reserve(ctx, usecase.ReserveInput{
				CheckoutID: "co-same",
				ShopperID:  "shopper-1",
				Items:      []model.StockRequest{{ProductID: "tee-001", Quantity: 2}},
			})
			if s.NoError(err) {
				ids[i] = out.Reservation.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		s.Equal(ids[0], id)
	}
	s.Equal(int64(2), s.level("tee-001").ReservedQuantity)
}
