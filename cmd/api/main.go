package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tiered-orders/internal/config"
	"github.com/ariefcatur/go-tiered-orders/internal/httpx"
	"github.com/ariefcatur/go-tiered-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-tiered-orders/internal/kafka"
	"github.com/ariefcatur/go-tiered-orders/internal/lock"
	"github.com/ariefcatur/go-tiered-orders/internal/metrics"
	"github.com/ariefcatur/go-tiered-orders/internal/observability"
	"github.com/ariefcatur/go-tiered-orders/internal/orders"
	"github.com/ariefcatur/go-tiered-orders/internal/postgres"
	"github.com/ariefcatur/go-tiered-orders/internal/redisx"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		AuthHeader:  cfg.OtelAuthHeader,
	})
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	reg := metrics.NewRegistry()
	catalog := &orders.CatalogRepo{DB: db}

	stock, err := stockStore(ctx, cfg, catalog, rdb, logger)
	if err != nil {
		logger.Fatal("stock backend", zap.Error(err))
	}
	guard := inventory.NewGuard(stock, locker(cfg, rdb), inventory.GuardConfig{
		Wait:  cfg.LockWait,
		Lease: cfg.LockLease,
	}, logger, reg)

	// Kafka producer, topic dipilih per event
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start()

	svc := orders.NewService(orders.Deps{
		Store:       &orders.Repo{DB: db},
		Catalog:     catalog,
		Stock:       guard,
		Publisher:   prod,
		Logger:      logger,
		Metrics:     reg,
		ServiceName: cfg.ServiceName,
	})

	router := httpx.NewRouter(logger, reg.Handler())
	oh := &httpx.OrdersHandler{
		Service:  svc,
		Cache:    redisx.NewStatusCache(rdb),
		Products: catalog,
		Logger:   logger,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("lock_backend", cfg.LockBackend),
			zap.String("stock_backend", cfg.StockBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	cancel()
}

// locker picks the per-product lock backend. local only holds for a single
// API instance.
func locker(cfg config.Config, rdb *redis.Client) lock.Locker {
	if cfg.LockBackend == "local" {
		return lock.NewLocal()
	}
	return redisx.NewLocker(rdb)
}

func stockStore(ctx context.Context, cfg config.Config, catalog *orders.CatalogRepo, rdb *redis.Client, logger *zap.Logger) (inventory.StockStore, error) {
	if cfg.StockBackend != "redis" {
		return catalog, nil
	}

	// warm Redis dari katalog, angka yang sudah ada tidak ditimpa
	rs := redisx.NewStockStore(rdb)
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	products, err := catalog.ListProducts(wctx)
	if err != nil {
		return nil, err
	}
	seeded := 0
	for _, p := range products {
		ok, err := rs.SeedStock(wctx, p.ID, p.Stock)
		if err != nil {
			return nil, err
		}
		if ok {
			seeded++
		}
	}
	logger.Info("redis stock warmed", zap.Int("products", len(products)), zap.Int("seeded", seeded))
	return rs, nil
}
