package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iippk/PersonalWorks/internal/config"
	"github.com/iippk/PersonalWorks/internal/httpx"
	kafkax "github.com/iippk/PersonalWorks/internal/kafka"
	"github.com/iippk/PersonalWorks/internal/observability"
	"github.com/iippk/PersonalWorks/internal/orders"
	"github.com/iippk/PersonalWorks/internal/postgres"
	"github.com/iippk/PersonalWorks/internal/productclient"
	"github.com/iippk/PersonalWorks/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}

	opts := []orders.Option{orders.WithLogger(log.Named("orders"))}
	handler := &httpx.OrdersHandler{Log: log.Named("http")}

	var store orders.Store
	var prod *kafkax.Producer
	if cfg.Memory() {
		log.Warn("running with in-memory order store; redis and kafka disabled")
		store = orders.NewMemStore()
	} else {
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
		store = &orders.Repo{DB: db}

		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		handler.Cache = &redisx.OrderCache{RDB: rdb}

		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.OrderTopic, 1024, log.Named("kafka"))
		prod.Start(ctx)
		opts = append(opts, orders.WithPublisher(&orders.KafkaPublisher{Producer: prod, Service: cfg.ServiceName}))
	}

	products := productclient.New(cfg.ProductBaseURL, cfg.ProductTimeout, nil)
	handler.Service = orders.NewService(store, products, opts...)

	router := httpx.NewRouter(log.Named("http"))
	handler.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("product_base_url", cfg.ProductBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()
			prod.WaitClosed()
		}
		return errors.Join(err, shutdownTracing(sctx))
	})
	if err := g.Wait(); err != nil {
		log.Error("order api exited", zap.Error(err))
	}
}
