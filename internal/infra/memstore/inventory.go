package memstore

import (
	"context"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
)

type inventoryRepo struct {
	run runner
	now func() time.Time
}

func (r *inventoryRepo) GetStock(ctx context.Context, productID string) (model.StockLevel, error) {
	var out model.StockLevel
	err := r.run(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return repo.ErrNotFound
		}
		out = p.StockLevel()
		return nil
	})
	return out, err
}

func (r *inventoryRepo) TryReserve(ctx context.Context, productID string, qty int64) (bool, error) {
	var ok bool
	err := r.run(ctx, func(st *state) error {
		p, found := st.products[productID]
		if !found || p.StockQuantity-p.ReservedQuantity < qty {
			return nil
		}
		p.ReservedQuantity += qty
		p.UpdatedAt = r.now()
		st.products[productID] = p
		ok = true
		return nil
	})
	return ok, err
}

func (r *inventoryRepo) Release(ctx context.Context, productID string, qty int64) error {
	return r.run(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return repo.ErrNotFound
		}
		p.ReservedQuantity -= qty
		if p.ReservedQuantity < 0 {
			p.ReservedQuantity = 0
		}
		p.UpdatedAt = r.now()
		st.products[productID] = p
		return nil
	})
}

func (r *inventoryRepo) Commit(ctx context.Context, productID string, qty int64) (bool, error) {
	var ok bool
	err := r.run(ctx, func(st *state) error {
		p, found := st.products[productID]
		if !found || p.ReservedQuantity < qty || p.StockQuantity < qty {
			return nil
		}
		p.StockQuantity -= qty
		p.ReservedQuantity -= qty
		p.UpdatedAt = r.now()
		st.products[productID] = p
		ok = true
		return nil
	})
	return ok, err
}

func (r *inventoryRepo) SetStock(ctx context.Context, productID string, newStock int64) error {
	return r.run(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return repo.ErrNotFound
		}
		if newStock < p.ReservedQuantity {
			return model.ErrStockBelowReserved
		}
		p.StockQuantity = newStock
		p.UpdatedAt = r.now()
		st.products[productID] = p
		return nil
	})
}

func (r *inventoryRepo) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.run(ctx, func(st *state) error {
		st.nextAdjID++
		adj.ID = st.nextAdjID
		if adj.CreatedAt.IsZero() {
			adj.CreatedAt = r.now()
		}
		st.adjustments = append(st.adjustments, adj)
		return nil
	})
}
