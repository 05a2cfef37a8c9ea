package main

import (
	"context"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iippk/PersonalWorks/internal/config"
	kafkax "github.com/iippk/PersonalWorks/internal/kafka"
	"github.com/iippk/PersonalWorks/internal/observability"
	"github.com/iippk/PersonalWorks/internal/orderlog"
	"github.com/iippk/PersonalWorks/internal/postgres"
	"github.com/iippk/PersonalWorks/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := config.Getenv("ORDERLOG_SERVICE_NAME", "order-log")

	log, err := observability.NewLogger(service, cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &orderlog.Service{
		Repo:  &orderlog.Repo{DB: db},
		Dedup: &redisx.Dedup{RDB: rdb, Service: service},
		Log:   log.Named("orderlog"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.OrderLogGroup, cfg.OrderTopic, cfg.OrderLogWorker, log.Named("kafka"),
		kafkax.WithRetry(cfg.OrderLogTries, 0, 0))
	log.Info("order log consumer started",
		zap.String("group", cfg.OrderLogGroup), zap.String("topic", cfg.OrderTopic), zap.Int("workers", cfg.OrderLogWorker))
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		log.Fatal("order log consumer failed", zap.Error(err))
	}
	log.Info("order log consumer stopped")
}
