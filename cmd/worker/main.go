package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tiered-orders/internal/config"
	kafkax "github.com/ariefcatur/go-tiered-orders/internal/kafka"
	"github.com/ariefcatur/go-tiered-orders/internal/observability"
	"github.com/ariefcatur/go-tiered-orders/internal/orders"
	"github.com/ariefcatur/go-tiered-orders/internal/projector"
	"github.com/ariefcatur/go-tiered-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.ServiceName+"-worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Cache:  redisx.NewStatusCache(rdb),
		Dedup:  redisx.NewDedup(rdb, "projector"),
		Logger: logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.StatusTopics, cfg.WorkerCount, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("status projector started",
			zap.String("group", cfg.WorkerGroup),
			zap.Strings("topics", orders.StatusTopics),
			zap.Int("workers", cfg.WorkerCount),
		)
		if err := cons.Start(ctx, svc.HandleMessage); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("shutting down consumer...")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
