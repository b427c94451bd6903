package usecase

import (
	"context"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
)

type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// 引当イベントの送信先（Kafka / ログ）
type EventPublisher interface {
	Publish(ctx context.Context, ev model.ReservationEvent) error
}
