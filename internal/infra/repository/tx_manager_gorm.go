package repository

import (
	"context"
	"time"

	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	products     repo.ProductRepository
	inventory    repo.InventoryRepository
	reservations repo.ReservationRepository
	auditLogs    repo.AuditLogRepository
}

func (r *txReposGorm) Products() repo.ProductRepository         { return r.products }
func (r *txReposGorm) Inventory() repo.InventoryRepository      { return r.inventory }
func (r *txReposGorm) Reservations() repo.ReservationRepository { return r.reservations }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository       { return r.auditLogs }

// デッドロック・直列化失敗のときの再試行回数
const defaultTxAttempts = 3

type TxManagerGorm struct {
	db       *gorm.DB
	attempts int
	backoff  time.Duration
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db, attempts: defaultTxAttempts, backoff: 20 * time.Millisecond}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	var err error
	for attempt := 1; attempt <= tm.attempts; attempt++ {
		err = tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			//repoはtxを持ったDBで作り直す
			return fn(newTxReposGorm(tx))
		})
		if err == nil || !isRetryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return classifyTxError(err)
		case <-time.After(time.Duration(attempt) * tm.backoff):
		}
	}
	return classifyTxError(err)
}

func newTxReposGorm(tx *gorm.DB) *txReposGorm {
	return &txReposGorm{
		products:     NewProductGormRepository(tx),
		inventory:    NewInventoryGormRepository(tx),
		reservations: NewReservationGormRepository(tx),
		auditLogs:    NewAuditLogGormRepository(tx),
	}
}
