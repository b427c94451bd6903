package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/ibra-a/urbanjungle-website-sub000/internal/usecase")

// Tx 内で同じ checkout_id が先に作られていた
var errCheckoutRace = errors.New("checkout created concurrently")

// 在庫引当サービス。
// 引当は 1 つの Tx で全商品まとめて行い、1 つでも足りなければ何も引き当てない。
type ReservationUsecase struct {
	tx           repo.TransactionManager
	inventory    repo.InventoryRepository
	reservations repo.ReservationRepository
	publisher    EventPublisher
	idGen        IDGenerator
	clock        Clock
	metrics      *metrics.Metrics

	ttl       time.Duration
	buffer    int64
	batchSize int
}

type ReservationConfig struct {
	TTL            time.Duration // 引当の有効期限
	StockBuffer    int64         // 在庫確認時に差し引く安全在庫
	SweepBatchSize int
}

func NewReservationUsecase(
	tx repo.TransactionManager,
	inventory repo.InventoryRepository,
	reservations repo.ReservationRepository,
	publisher EventPublisher,
	idGen IDGenerator,
	clock Clock,
	m *metrics.Metrics,
	cfg ReservationConfig,
) *ReservationUsecase {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &ReservationUsecase{
		tx:           tx,
		inventory:    inventory,
		reservations: reservations,
		publisher:    publisher,
		idGen:        idGen,
		clock:        clock,
		metrics:      m,
		ttl:          cfg.TTL,
		buffer:       cfg.StockBuffer,
		batchSize:    cfg.SweepBatchSize,
	}
}

type ReserveInput struct {
	CheckoutID string
	ShopperID  string
	Items      []model.StockRequest
}

type ReserveOutput struct {
	Reservation model.Reservation `json:"reservation"`
	Replayed    bool              `json:"replayed"` // 同じ checkout_id の再送で既存を返した
}

// 引当。同じ checkout_id の再送は既存の引当を返す（二重に引き当てない）。
func (u *ReservationUsecase) Reserve(ctx context.Context, in ReserveInput) (ReserveOutput, error) {
	checkoutID := strings.TrimSpace(in.CheckoutID)
	if checkoutID == "" || len(checkoutID) > 255 {
		return ReserveOutput{}, NewHTTPError(http.StatusBadRequest, "invalid checkout_id")
	}
	if in.ShopperID == "" {
		return ReserveOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateStockRequests(in.Items); err != nil {
		return ReserveOutput{}, err
	}
	reqs := model.AggregateStockRequests(in.Items)

	ctx, span := tracer.Start(ctx, "reservation.Reserve", trace.WithAttributes(
		attribute.String("checkout.id", checkoutID),
		attribute.Int("items", len(reqs)),
	))
	defer span.End()

	started := time.Now()
	defer func() { u.metrics.ReserveDuration.Observe(time.Since(started).Seconds()) }()

	var out ReserveOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// Tx は再試行されることがあるので毎回作り直す
		out = ReserveOutput{}

		existing, found, err := r.Reservations().FindByCheckoutID(ctx, checkoutID)
		if err != nil {
			return err
		}
		if found {
			res, err := replay(existing, in.ShopperID)
			if err != nil {
				return err
			}
			out = ReserveOutput{Reservation: res, Replayed: true}
			return nil
		}

		// productId 昇順で条件付き UPDATE（ロック順を固定）
		for _, req := range reqs {
			ok, err := r.Inventory().TryReserve(ctx, req.ProductID, req.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return insufficient(ctx, r.Inventory(), req)
			}
		}

		now := u.clock.Now()
		id := u.idGen.NewID()
		res := model.Reservation{
			ID:         id,
			CheckoutID: checkoutID,
			ShopperID:  in.ShopperID,
			Status:     model.ReservationStatusReserved,
			Items:      toReservationItems(id, reqs),
			ExpiresAt:  now.Add(u.ttl),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := r.Reservations().Create(ctx, res); err != nil {
			if errors.Is(err, repo.ErrDuplicateCheckout) {
				return errCheckoutRace
			}
			return err
		}

		out = ReserveOutput{Reservation: res}
		return nil
	})

	//競合（同時で同じキーが入った等）はもう一回検索して同じ結果を返す
	if errors.Is(err, errCheckoutRace) {
		existing, found, ferr := u.reservations.FindByCheckoutID(ctx, checkoutID)
		if ferr != nil || !found {
			err = unavailable(fmt.Errorf("re-read checkout %s: %v", checkoutID, ferr))
		} else {
			res, rerr := replay(existing, in.ShopperID)
			out, err = ReserveOutput{Reservation: res, Replayed: true}, rerr
		}
	}

	if err != nil {
		err = unavailable(err)
		u.metrics.Reservations.WithLabelValues(reserveResult(err)).Inc()
		recordSpanError(span, err)
		return ReserveOutput{}, err
	}

	if out.Replayed {
		u.metrics.Reservations.WithLabelValues(metrics.ResultReplayed).Inc()
		zerolog.Ctx(ctx).Info().
			Str("reservation_id", out.Reservation.ID).
			Str("checkout_id", checkoutID).
			Str("status", string(out.Reservation.Status)).
			Msg("reserve replayed")
		return out, nil
	}

	u.metrics.Reservations.WithLabelValues(metrics.ResultOK).Inc()
	span.SetAttributes(attribute.String("reservation.id", out.Reservation.ID))
	zerolog.Ctx(ctx).Info().
		Str("reservation_id", out.Reservation.ID).
		Str("checkout_id", checkoutID).
		Int("items", len(reqs)).
		Time("expires_at", out.Reservation.ExpiresAt).
		Msg("stock reserved")

	u.publish(ctx, model.NewReservationEvent(model.EventReservationReserved, out.Reservation, u.clock.Now()))
	return out, nil
}

// 引当を解放（キャンセル・決済失敗）。解放済み・期限切れなら何もしない。
func (u *ReservationUsecase) Release(ctx context.Context, shopperID, reservationID string) (model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Release", trace.WithAttributes(attribute.String("reservation.id", reservationID)))
	defer span.End()

	var (
		out     model.Reservation
		changed bool
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		out, changed = model.Reservation{}, false

		res, err := findOwned(ctx, r.Reservations(), shopperID, reservationID)
		if err != nil {
			return err
		}

		switch res.Status {
		case model.ReservationStatusReleased, model.ReservationStatusExpired:
			out = res
			return nil
		case model.ReservationStatusCommitted:
			return NewHTTPError(http.StatusConflict, "reservation already committed")
		}

		ok, err := r.Reservations().TransitionStatus(ctx, res.ID, model.ReservationStatusReserved, model.ReservationStatusReleased)
		if err != nil {
			return err
		}
		if !ok {
			// 他で先に動いた
			cur, err := r.Reservations().FindByID(ctx, res.ID)
			if err != nil {
				return err
			}
			if cur.Status == model.ReservationStatusCommitted {
				return NewHTTPError(http.StatusConflict, "reservation already committed")
			}
			out = cur
			return nil
		}

		if err := releaseHolds(ctx, r.Inventory(), res.StockRequests()); err != nil {
			return err
		}

		res.Status = model.ReservationStatusReleased
		res.UpdatedAt = u.clock.Now()
		out, changed = res, true
		return nil
	})
	if err != nil {
		err = unavailable(err)
		recordSpanError(span, err)
		return model.Reservation{}, err
	}
	if !changed {
		return out, nil
	}

	u.metrics.Releases.WithLabelValues(metrics.ReasonCancel).Inc()
	zerolog.Ctx(ctx).Info().Str("reservation_id", out.ID).Str("checkout_id", out.CheckoutID).Msg("reservation released")
	u.publish(ctx, model.NewReservationEvent(model.EventReservationReleased, out, u.clock.Now()))
	return out, nil
}

// 決済成功。引当を実在庫の減算に変える。確定済みなら何もしない。
func (u *ReservationUsecase) Confirm(ctx context.Context, shopperID, reservationID string) (model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Confirm", trace.WithAttributes(attribute.String("reservation.id", reservationID)))
	defer span.End()

	var (
		out     model.Reservation
		changed bool
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		out, changed = model.Reservation{}, false

		res, err := findOwned(ctx, r.Reservations(), shopperID, reservationID)
		if err != nil {
			return err
		}

		switch res.Status {
		case model.ReservationStatusCommitted:
			out = res
			return nil
		case model.ReservationStatusExpired:
			return model.ErrReservationExpired
		case model.ReservationStatusReleased:
			return model.ErrReservationClosed
		}
		if res.IsExpired(u.clock.Now()) {
			// 状態は掃除役が EXPIRED にする
			return model.ErrReservationExpired
		}

		ok, err := r.Reservations().TransitionStatus(ctx, res.ID, model.ReservationStatusReserved, model.ReservationStatusCommitted)
		if err != nil {
			return err
		}
		if !ok {
			cur, err := r.Reservations().FindByID(ctx, res.ID)
			if err != nil {
				return err
			}
			switch cur.Status {
			case model.ReservationStatusCommitted:
				out = cur
				return nil
			case model.ReservationStatusExpired:
				return model.ErrReservationExpired
			default:
				return model.ErrReservationClosed
			}
		}

		for _, req := range res.StockRequests() {
			ok, err := r.Inventory().Commit(ctx, req.ProductID, req.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				// reserved <= stock が崩れている
				return fmt.Errorf("commit %s x%d: reserved quantity missing", req.ProductID, req.Quantity)
			}
		}

		res.Status = model.ReservationStatusCommitted
		res.UpdatedAt = u.clock.Now()
		out, changed = res, true
		return nil
	})
	if err != nil {
		err = unavailable(err)
		u.metrics.Confirms.WithLabelValues(confirmResult(err)).Inc()
		recordSpanError(span, err)
		return model.Reservation{}, err
	}
	if !changed {
		u.metrics.Confirms.WithLabelValues(metrics.ResultNoop).Inc()
		return out, nil
	}

	u.metrics.Confirms.WithLabelValues(metrics.ResultOK).Inc()
	zerolog.Ctx(ctx).Info().Str("reservation_id", out.ID).Str("checkout_id", out.CheckoutID).Msg("reservation committed")
	u.publish(ctx, model.NewReservationEvent(model.EventReservationCommitted, out, u.clock.Now()))
	return out, nil
}

// 引当数を指定数だけ戻す（0 未満にはしない）。引当レコードは動かさない。
func (u *ReservationUsecase) ReleaseItems(ctx context.Context, items []model.StockRequest) error {
	if err := validateStockRequests(items); err != nil {
		return err
	}
	reqs := model.AggregateStockRequests(items)

	ctx, span := tracer.Start(ctx, "reservation.ReleaseItems", trace.WithAttributes(attribute.Int("items", len(reqs))))
	defer span.End()

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return releaseHolds(ctx, r.Inventory(), reqs)
	})
	if err != nil {
		err = unavailable(err)
		recordSpanError(span, err)
		return err
	}

	u.metrics.Releases.WithLabelValues(metrics.ReasonAdmin).Inc()
	return nil
}

// 期限切れの RESERVED を EXPIRED にして引当を戻す。戻した件数を返す。
// 1 件ずつ Tx を分ける（1 件の失敗で他を止めない）。
func (u *ReservationUsecase) ExpireStale(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "reservation.ExpireStale")
	defer span.End()

	now := u.clock.Now()
	stale, err := u.reservations.ListExpired(ctx, now, u.batchSize)
	if err != nil {
		err = unavailable(err)
		recordSpanError(span, err)
		return 0, err
	}

	log := zerolog.Ctx(ctx)
	expired := 0
	var firstErr error
	for _, res := range stale {
		changed := false
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			changed = false
			ok, err := r.Reservations().TransitionStatus(ctx, res.ID, model.ReservationStatusReserved, model.ReservationStatusExpired)
			if err != nil || !ok {
				return err
			}
			if err := releaseHolds(ctx, r.Inventory(), res.StockRequests()); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("reservation_id", res.ID).Msg("expire reservation failed")
			if firstErr == nil {
				firstErr = unavailable(err)
			}
			continue
		}
		if !changed {
			continue
		}

		expired++
		res.Status = model.ReservationStatusExpired
		u.metrics.Expired.Inc()
		u.metrics.Releases.WithLabelValues(metrics.ReasonExpiry).Inc()
		log.Info().Str("reservation_id", res.ID).Str("checkout_id", res.CheckoutID).Msg("reservation expired")
		u.publish(ctx, model.NewReservationEvent(model.EventReservationExpired, res, now))
	}

	span.SetAttributes(attribute.Int("expired", expired))
	if firstErr != nil {
		recordSpanError(span, firstErr)
	}
	return expired, firstErr
}

type AvailabilityItem struct {
	ProductID   string `json:"product_id"`
	Requested   int64  `json:"requested"`
	Available   int64  `json:"available"`
	IsAvailable bool   `json:"is_available"`
}

type AvailabilityOutput struct {
	Items        []AvailabilityItem `json:"items"`
	AllAvailable bool               `json:"all_available"`
}

// 在庫確認（読み取りのみ）。販売可能数から安全在庫を引いて判定する。
// 登録の無い商品は available=0。
func (u *ReservationUsecase) CheckAvailability(ctx context.Context, items []model.StockRequest) (AvailabilityOutput, error) {
	if err := validateStockRequests(items); err != nil {
		return AvailabilityOutput{}, err
	}
	reqs := model.AggregateStockRequests(items)

	ctx, span := tracer.Start(ctx, "reservation.CheckAvailability", trace.WithAttributes(attribute.Int("items", len(reqs))))
	defer span.End()

	results := make([]AvailabilityItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, req := range reqs {
		g.Go(func() error {
			level, err := u.inventory.GetStock(gctx, req.ProductID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			available := level.Available() - u.buffer
			if available < 0 {
				available = 0
			}
			results[i] = AvailabilityItem{
				ProductID:   req.ProductID,
				Requested:   req.Quantity,
				Available:   available,
				IsAvailable: req.Quantity <= available,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		err = unavailable(err)
		recordSpanError(span, err)
		return AvailabilityOutput{}, err
	}

	all := true
	for _, it := range results {
		all = all && it.IsAvailable
	}
	return AvailabilityOutput{Items: results, AllAvailable: all}, nil
}

// 自分の引当を 1 件取得（他人のものは 404）
func (u *ReservationUsecase) Get(ctx context.Context, shopperID, reservationID string) (model.Reservation, error) {
	res, err := findOwned(ctx, u.reservations, shopperID, reservationID)
	if err != nil {
		return model.Reservation{}, unavailable(err)
	}
	return res, nil
}

func (u *ReservationUsecase) publish(ctx context.Context, ev model.ReservationEvent) {
	if err := u.publisher.Publish(ctx, ev); err != nil {
		u.metrics.EventPublishErrors.Inc()
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_type", string(ev.Type)).
			Str("reservation_id", ev.ReservationID).
			Msg("publish reservation event failed")
	}
}

func validateStockRequests(items []model.StockRequest) error {
	if len(items) == 0 {
		return NewHTTPError(http.StatusBadRequest, "items required")
	}
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		if it.Quantity < 1 {
			return NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
	}
	return nil
}

// 同じ checkout_id の再送。RESERVED / COMMITTED ならそのまま返す。
func replay(existing model.Reservation, shopperID string) (model.Reservation, error) {
	if existing.ShopperID != shopperID {
		return model.Reservation{}, NewHTTPError(http.StatusConflict, "checkout_id already used")
	}
	switch existing.Status {
	case model.ReservationStatusReserved, model.ReservationStatusCommitted:
		return existing, nil
	default:
		return model.Reservation{}, model.ErrReservationClosed
	}
}

// 足りなかった商品の販売可能数を添えて InsufficientStockError にする
func insufficient(ctx context.Context, inv repo.InventoryRepository, req model.StockRequest) error {
	level, err := inv.GetStock(ctx, req.ProductID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return &model.InsufficientStockError{
		ProductID: req.ProductID,
		Requested: req.Quantity,
		Available: level.Available(),
	}
}

// 引当を戻す。商品が消えていても他の商品は戻す。
func releaseHolds(ctx context.Context, inv repo.InventoryRepository, reqs []model.StockRequest) error {
	for _, req := range reqs {
		err := inv.Release(ctx, req.ProductID, req.Quantity)
		if errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Str("product_id", req.ProductID).Msg("release skipped, product not found")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// shopperID が空なら所有チェックしない（管理者・掃除役）
func findOwned(ctx context.Context, reservations repo.ReservationRepository, shopperID, reservationID string) (model.Reservation, error) {
	if strings.TrimSpace(reservationID) == "" {
		return model.Reservation{}, NewHTTPError(http.StatusBadRequest, "invalid reservation id")
	}
	res, err := reservations.FindByID(ctx, reservationID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Reservation{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Reservation{}, err
	}
	if shopperID != "" && res.ShopperID != shopperID {
		return model.Reservation{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return res, nil
}

func toReservationItems(reservationID string, reqs []model.StockRequest) []model.ReservationItem {
	items := make([]model.ReservationItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, model.ReservationItem{
			ReservationID: reservationID,
			ProductID:     req.ProductID,
			Quantity:      req.Quantity,
		})
	}
	return items
}

func reserveResult(err error) string {
	if _, ok := model.AsInsufficientStock(err); ok {
		return metrics.ResultInsufficientStock
	}
	if errors.Is(err, model.ErrInventoryUnavailable) {
		return metrics.ResultUnavailable
	}
	return "error"
}

func confirmResult(err error) string {
	if errors.Is(err, model.ErrReservationExpired) {
		return metrics.ResultExpired
	}
	if errors.Is(err, model.ErrInventoryUnavailable) {
		return metrics.ResultUnavailable
	}
	return "error"
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
