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
	"github.com/iippk/PersonalWorks/internal/observability"
	"github.com/iippk/PersonalWorks/internal/postgres"
	"github.com/iippk/PersonalWorks/internal/product"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := config.Getenv("PRODUCT_SERVICE_NAME", "product-api")
	addr := config.Getenv("PRODUCT_HTTP_ADDR", ":8082")

	log, err := observability.NewLogger(service, cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}

	var store product.Store
	if cfg.Memory() {
		log.Warn("running with in-memory product store")
		store = product.NewMemStore()
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
		store = &product.Repo{DB: db}
	}

	router := httpx.NewRouter(log.Named("http"))
	(&httpx.ProductsHandler{Store: store, Log: log.Named("http")}).Register(router)

	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", addr))
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
		return errors.Join(srv.Shutdown(sctx), shutdownTracing(sctx))
	})
	if err := g.Wait(); err != nil {
		log.Error("product api exited", zap.Error(err))
	}
}
