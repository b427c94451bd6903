package event

import (
	"context"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"

	"github.com/rs/zerolog"
)

// Kafka が無い環境用。イベントをログに出すだけ。
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev model.ReservationEvent) error {
	p.log.Info().
		Str("event_type", string(ev.Type)).
		Str("reservation_id", ev.ReservationID).
		Str("checkout_id", ev.CheckoutID).
		Str("shopper_id", ev.ShopperID).
		Int("items", len(ev.Items)).
		Msg("reservation event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
