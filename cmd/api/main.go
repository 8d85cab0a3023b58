package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/app"
	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/lifecycle"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := telemetry.Setup(ctx, cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.OtelEndpoint != "")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Store
	db, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer; its loop outlives ctx so the final events are flushed
	prodCtx, cancelProd := context.WithCancel(context.Background())
	defer cancelProd()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, logger)
	prod.Start(prodCtx)

	eng := lifecycle.New(db,
		lifecycle.WithLogger(logger),
		lifecycle.WithPublisher(kafkax.LifecyclePublisher{P: prod}),
		lifecycle.WithUnpaidTTL(cfg.UnpaidTTL),
		lifecycle.WithPasswordCost(cfg.BcryptCost),
		lifecycle.WithProducerName(cfg.ServiceName),
	)

	router := httpx.NewRouter(db.Ping)
	h := &httpx.Handler{
		Engine: eng,
		Idem:   redisx.NewIdempotency(rdb),
		Status: redisx.NewStatusCache(rdb),
		Log:    logger,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
	if err := shutdownOtel(ctx2); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
}
