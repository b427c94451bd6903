package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/config"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/handler"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/db"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/event"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/memstore"
	infraRepo "github.com/ibra-a/urbanjungle-website-sub000/internal/infra/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/infra/storage"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/logger"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/metrics"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/server"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/tracing"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/usecase"
	"github.com/ibra-a/urbanjungle-website-sub000/internal/worker"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// 在庫コラボレータ（Tx と各リポジトリ）
type inventoryDeps struct {
	tx           repo.TransactionManager
	products     repo.ProductRepository
	inventory    repo.InventoryRepository
	reservations repo.ReservationRepository
	auditLogs    repo.AuditLogRepository
}

type eventPublisher interface {
	usecase.EventPublisher
	Close() error
}

func main() {
	//.env は無くてもよい
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(cfg.LogLevel, cfg.GoEnv, cfg.ServiceName)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	//トレース
	shutdownTracing, err := tracing.Init(cfg.ServiceName, cfg.JaegerEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	//メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]handler.Pinger{}

	//在庫コラボレータ
	inv, err := newInventory(cfg, log, checks)
	if err != nil {
		return err
	}

	//カートの保存先
	cartStorage, closeStorage, err := newCartStorage(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStorage()

	//イベント
	publisher := newPublisher(cfg, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("publisher close")
		}
	}()

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}

	//Usecase生成
	cartUC := usecase.NewCartUsecase(cartStorage, inv.products, clock, m)
	reservationUC := usecase.NewReservationUsecase(
		inv.tx, inv.inventory, inv.reservations, publisher, idGen, clock, m,
		usecase.ReservationConfig{
			TTL:            cfg.ReservationTTL,
			StockBuffer:    cfg.StockBuffer,
			SweepBatchSize: cfg.SweepBatchSize,
		},
	)
	checkoutUC := usecase.NewCheckoutUsecase(cartUC, reservationUC, idGen)
	inventoryUC := usecase.NewInventoryUsecase(inv.tx, inv.inventory, inv.reservations, inv.auditLogs, clock, m)

	//期限切れ引当の掃除（カートのセッションは保存先の TTL と同じだけ残す）
	cartIdle := cfg.CartTTL
	if cartIdle <= 0 {
		cartIdle = 24 * time.Hour
	}
	sweeper := worker.NewSweeper(reservationUC, cartUC, cfg.SweepInterval, cartIdle, log)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	//Handler生成
	e := server.New(cfg, log, server.Handlers{
		Cart:      handler.NewCartHandler(cartUC),
		Checkout:  handler.NewCheckoutHandler(checkoutUC),
		Inventory: handler.NewInventoryHandler(reservationUC, inventoryUC),
		Admin:     handler.NewAdminHandler(inventoryUC),
		Health:    handler.NewHealthHandler(checks),
	}, reg)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	err = server.Start(ctx, e, addr, log)

	stop()
	<-sweeperDone
	return err
}

func newInventory(cfg config.Config, log zerolog.Logger, checks map[string]handler.Pinger) (inventoryDeps, error) {
	if cfg.InventoryDriver == config.DriverMemory {
		log.Warn().Msg("inventory driver is memory (data is lost on restart)")
		store := memstore.New()
		return inventoryDeps{
			tx:           store,
			products:     store.Products(),
			inventory:    store.Inventory(),
			reservations: store.Reservations(),
			auditLogs:    store.AuditLogs(),
		}, nil
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return inventoryDeps{}, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return inventoryDeps{}, err
	}
	checks["postgres"] = db.Pinger{DB: gormDB}

	//Repository（GORM実装）生成
	return inventoryDeps{
		tx:           infraRepo.NewTxManagerGorm(gormDB),
		products:     infraRepo.NewProductGormRepository(gormDB),
		inventory:    infraRepo.NewInventoryGormRepository(gormDB),
		reservations: infraRepo.NewReservationGormRepository(gormDB),
		auditLogs:    infraRepo.NewAuditLogGormRepository(gormDB),
	}, nil
}

func newCartStorage(ctx context.Context, cfg config.Config, log zerolog.Logger, checks map[string]handler.Pinger) (repo.CartStorage, func(), error) {
	if cfg.CartStorage == config.DriverMemory {
		log.Warn().Msg("cart storage is memory (carts are lost on restart)")
		return storage.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	st := storage.NewRedisStore(client, cfg.CartTTL)

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := st.Ping(pctx); err != nil {
		// 起動は続ける（届かない間のカート操作は 503、保存済みカートは上書きしない）
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
	}
	checks["redis"] = st

	return st, func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}, nil
}

func newPublisher(cfg config.Config, log zerolog.Logger) eventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		return event.NewLogPublisher(log)
	}
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing reservation events to kafka")
	return event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
