package repository

import (
	"context"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"

	"gorm.io/gorm"
)

type ReservationGormRepository struct {
	db *gorm.DB
}

func NewReservationGormRepository(db *gorm.DB) *ReservationGormRepository {
	return &ReservationGormRepository{db: db}
}

// 引当と明細をまとめて保存
func (r *ReservationGormRepository) Create(ctx context.Context, res model.Reservation) error {
	err := r.db.WithContext(ctx).Create(&res).Error
	if isUniqueViolation(err) {
		return repo.ErrDuplicateCheckout
	}
	return err
}

func (r *ReservationGormRepository) FindByID(ctx context.Context, id string) (model.Reservation, error) {
	var res model.Reservation
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC") }).
		Where("id = ?", id).
		First(&res).Error
	if isNotFound(err) {
		return model.Reservation{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// checkout_id で検索（無ければ found=false）
func (r *ReservationGormRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (model.Reservation, bool, error) {
	var res model.Reservation
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC") }).
		Where("checkout_id = ?", checkoutID).
		First(&res).Error
	if isNotFound(err) {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	return res, true, nil
}

// status = from のときだけ更新する（同時に確定と解放が来ても片方だけ通る）
func (r *ReservationGormRepository) TransitionStatus(ctx context.Context, id string, from, to model.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 期限切れの RESERVED
func (r *ReservationGormRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}

	var list []model.Reservation
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND expires_at <= ?", model.ReservationStatusReserved, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// 管理者用一覧（新しい順）
func (r *ReservationGormRepository) List(ctx context.Context, f repo.ReservationFilter) ([]model.Reservation, error) {
	q := r.db.WithContext(ctx).Model(&model.Reservation{}).Preload("Items")

	if f.ShopperID != "" {
		q = q.Where("shopper_id = ?", f.ShopperID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	limit, offset := pageBounds(f.Limit, f.Offset)

	var list []model.Reservation
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// 一覧の limit（既定 50、最大 200）と offset
func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
