package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
)

type reservationRepo struct {
	run runner
	now func() time.Time
}

func (r *reservationRepo) Create(ctx context.Context, res model.Reservation) error {
	return r.run(ctx, func(st *state) error {
		if _, dup := st.byCheckout[res.CheckoutID]; dup {
			return repo.ErrDuplicateCheckout
		}
		if _, dup := st.reservations[res.ID]; dup {
			return repo.ErrDuplicateCheckout
		}

		now := r.now()
		if res.CreatedAt.IsZero() {
			res.CreatedAt = now
		}
		if res.UpdatedAt.IsZero() {
			res.UpdatedAt = now
		}
		res = cloneReservation(res)
		for i := range res.Items {
			st.nextItemID++
			res.Items[i].ID = st.nextItemID
			res.Items[i].ReservationID = res.ID
		}

		st.reservations[res.ID] = res
		st.byCheckout[res.CheckoutID] = res.ID
		return nil
	})
}

func (r *reservationRepo) FindByID(ctx context.Context, id string) (model.Reservation, error) {
	var out model.Reservation
	err := r.run(ctx, func(st *state) error {
		res, ok := st.reservations[id]
		if !ok {
			return repo.ErrNotFound
		}
		out = cloneReservation(res)
		return nil
	})
	return out, err
}

func (r *reservationRepo) FindByCheckoutID(ctx context.Context, checkoutID string) (model.Reservation, bool, error) {
	var (
		out   model.Reservation
		found bool
	)
	err := r.run(ctx, func(st *state) error {
		id, ok := st.byCheckout[checkoutID]
		if !ok {
			return nil
		}
		out = cloneReservation(st.reservations[id])
		found = true
		return nil
	})
	return out, found, err
}

func (r *reservationRepo) TransitionStatus(ctx context.Context, id string, from, to model.ReservationStatus) (bool, error) {
	var ok bool
	err := r.run(ctx, func(st *state) error {
		res, found := st.reservations[id]
		if !found || res.Status != from {
			return nil
		}
		res.Status = to
		res.UpdatedAt = r.now()
		st.reservations[id] = res
		ok = true
		return nil
	})
	return ok, err
}

func (r *reservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []model.Reservation
	err := r.run(ctx, func(st *state) error {
		for _, res := range st.reservations {
			if res.Status == model.ReservationStatusReserved && res.IsExpired(now) {
				out = append(out, cloneReservation(res))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *reservationRepo) List(ctx context.Context, f repo.ReservationFilter) ([]model.Reservation, error) {
	var out []model.Reservation
	err := r.run(ctx, func(st *state) error {
		for _, res := range st.reservations {
			if f.ShopperID != "" && res.ShopperID != f.ShopperID {
				continue
			}
			if f.Status != nil && res.Status != *f.Status {
				continue
			}
			out = append(out, cloneReservation(res))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	//新しい順
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return page(out, f.Limit, f.Offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []T{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
