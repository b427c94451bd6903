package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
)

// プロセス内の在庫コラボレータ（開発・テスト用）。
// Tx は 1 本の書き込みロックで直列化し、下書きにだけ書いて成功時に差し替える。
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

type state struct {
	products     map[string]model.Product
	reservations map[string]model.Reservation
	byCheckout   map[string]string
	adjustments  []model.InventoryAdjustment
	auditLogs    []model.AuditLog
	nextAdjID    int64
	nextAuditID  int64
	nextItemID   int64
}

func newState() *state {
	return &state{
		products:     map[string]model.Product{},
		reservations: map[string]model.Reservation{},
		byCheckout:   map[string]string{},
	}
}

func (s *state) clone() *state {
	out := &state{
		products:     make(map[string]model.Product, len(s.products)),
		reservations: make(map[string]model.Reservation, len(s.reservations)),
		byCheckout:   make(map[string]string, len(s.byCheckout)),
		adjustments:  append([]model.InventoryAdjustment(nil), s.adjustments...),
		auditLogs:    append([]model.AuditLog(nil), s.auditLogs...),
		nextAdjID:    s.nextAdjID,
		nextAuditID:  s.nextAuditID,
		nextItemID:   s.nextItemID,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.reservations {
		out.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.byCheckout {
		out.byCheckout[k] = v
	}
	return out
}

func cloneReservation(r model.Reservation) model.Reservation {
	r.Items = append([]model.ReservationItem(nil), r.Items...)
	return r
}

// repo の各メソッドは state への操作をこれ経由で行う
type runner func(ctx context.Context, f func(st *state) error) error

func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	run := func(ctx context.Context, f func(st *state) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return f(draft)
	}
	if err := fn(txRepos{run: run, now: s.now}); err != nil {
		return err
	}

	s.st = draft
	return nil
}

// Tx 外の単発操作。各操作はチェックが通ってから書くので下書きは要らない。
func (s *Store) autocommit(ctx context.Context, f func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.st)
}

func (s *Store) Products() repo.ProductRepository {
	return &productRepo{run: s.autocommit, now: s.now}
}

func (s *Store) Inventory() repo.InventoryRepository {
	return &inventoryRepo{run: s.autocommit, now: s.now}
}

func (s *Store) Reservations() repo.ReservationRepository {
	return &reservationRepo{run: s.autocommit, now: s.now}
}

func (s *Store) AuditLogs() repo.AuditLogRepository {
	return &auditLogRepo{run: s.autocommit, now: s.now}
}

// 在庫数・引当数まで含めて商品をそのまま入れる（初期データ・テスト用）
func (s *Store) Seed(products ...model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		s.st.products[p.ID] = p
	}
}

// 調整履歴（テスト・デバッグ用）
func (s *Store) Adjustments() []model.InventoryAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InventoryAdjustment(nil), s.st.adjustments...)
}

type txRepos struct {
	run runner
	now func() time.Time
}

func (r txRepos) Products() repo.ProductRepository {
	return &productRepo{run: r.run, now: r.now}
}

func (r txRepos) Inventory() repo.InventoryRepository {
	return &inventoryRepo{run: r.run, now: r.now}
}

func (r txRepos) Reservations() repo.ReservationRepository {
	return &reservationRepo{run: r.run, now: r.now}
}

func (r txRepos) AuditLogs() repo.AuditLogRepository {
	return &auditLogRepo{run: r.run, now: r.now}
}
