package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 結果ラベル
const (
	ResultOK                = "ok"
	ResultInsufficientStock = "insufficient_stock"
	ResultUnavailable       = "unavailable"
	ResultReplayed          = "replayed"
	ResultExpired           = "expired"
	ResultNoop              = "noop"
)

// 解放理由ラベル
const (
	ReasonCancel = "cancel"
	ReasonExpiry = "expiry"
	ReasonAdmin  = "admin"
)

type Metrics struct {
	Reservations        *prometheus.CounterVec
	Releases            *prometheus.CounterVec
	Confirms            *prometheus.CounterVec
	Expired             prometheus.Counter
	ReserveDuration     prometheus.Histogram
	CartMutations       *prometheus.CounterVec
	CartPersistFailures prometheus.Counter
	CartLoadFailures    prometheus.Counter
	EventPublishErrors  prometheus.Counter
}

// reg に登録したメトリクス一式を返す。テストでは新しい Registry を渡す。
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Reserve requests by result.",
		}, []string{"result"}),
		Releases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_releases_total",
			Help: "Released reservation holds by reason.",
		}, []string{"reason"}),
		Confirms: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_confirms_total",
			Help: "Confirm requests by result.",
		}, []string{"result"}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Name: "stock_reservations_expired_total",
			Help: "Reservations moved to EXPIRED by the sweeper.",
		}),
		ReserveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stock_reserve_duration_seconds",
			Help:    "Latency of reserve transactions.",
			Buckets: prometheus.DefBuckets,
		}),
		CartMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation.",
		}, []string{"op"}),
		CartPersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cart_persist_failures_total",
			Help: "Cart writes to durable storage that failed.",
		}),
		CartLoadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cart_load_failures_total",
			Help: "Cart reads from durable storage that failed.",
		}),
		EventPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "reservation_event_publish_errors_total",
			Help: "Reservation events that could not be published.",
		}),
	}
}

// テスト用（登録先を共有しない）
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
