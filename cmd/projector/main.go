package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/projector"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-projector"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := telemetry.Setup(ctx, cfg.OtelEndpoint, service)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, service, cfg.OtelEndpoint != "")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := projector.New(redisx.NewDedup(rdb, "projector"), redisx.NewStatusCache(rdb), logger)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderLifecycle, cfg.ProjectorWorkers, logger)

	logger.Info("projector consumer started",
		zap.String("group", cfg.ProjectorGroup),
		zap.String("topic", orders.TopicOrderLifecycle),
		zap.Int("workers", cfg.ProjectorWorkers))
	if err := cons.Start(ctx, svc.HandleLifecycle); err != nil && ctx.Err() == nil {
		logger.Error("consumer exit", zap.Error(err))
	}

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownOtel(ctx2); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
}
