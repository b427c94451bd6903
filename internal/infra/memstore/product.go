package memstore

import (
	"context"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
)

type productRepo struct {
	run runner
	now func() time.Time
}

func (r *productRepo) FindByID(ctx context.Context, id string) (model.Product, error) {
	var out model.Product
	err := r.run(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return repo.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r *productRepo) Upsert(ctx context.Context, p model.Product) (model.Product, error) {
	var out model.Product
	err := r.run(ctx, func(st *state) error {
		now := r.now()
		if cur, ok := st.products[p.ID]; ok {
			cur.Name = p.Name
			cur.Price = p.Price
			cur.IsActive = p.IsActive
			cur.UpdatedAt = now
			st.products[p.ID] = cur
			out = cur
			return nil
		}

		p.StockQuantity = 0
		p.ReservedQuantity = 0
		p.CreatedAt = now
		p.UpdatedAt = now
		st.products[p.ID] = p
		out = p
		return nil
	})
	return out, err
}
