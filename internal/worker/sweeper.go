package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// 期限切れ引当を EXPIRED にする側
type ReservationExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// 使われていないカートセッションを外す側
type CartEvictor interface {
	EvictIdle(idle time.Duration) int
}

// Sweeper は一定間隔で期限切れ引当の解放とカートセッションの整理を行う。
type Sweeper struct {
	expirer  ReservationExpirer
	carts    CartEvictor
	interval time.Duration
	cartIdle time.Duration
	log      zerolog.Logger
}

// cartIdle が 0 ならセッション整理はしない
func NewSweeper(expirer ReservationExpirer, carts CartEvictor, interval, cartIdle time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		expirer:  expirer,
		carts:    carts,
		interval: interval,
		cartIdle: cartIdle,
		log:      log.With().Str("component", "sweeper").Logger(),
	}
}

// ctx が終わるまで回る
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		}
	}
}

// 1 回分
func (s *Sweeper) Tick(ctx context.Context) {
	ctx = s.log.WithContext(ctx)

	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("expired", n).Msg("expire reservations failed")
	} else if n > 0 {
		s.log.Info().Int("expired", n).Msg("reservations expired")
	}

	if s.carts != nil && s.cartIdle > 0 {
		if evicted := s.carts.EvictIdle(s.cartIdle); evicted > 0 {
			s.log.Debug().Int("evicted", evicted).Msg("idle cart sessions evicted")
		}
	}
}
