package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-placement/internal/config"
	"github.com/dmehra2102/order-placement/internal/inventory/application"
	invgrpc "github.com/dmehra2102/order-placement/internal/inventory/infrastructure/grpc"
	invkafka "github.com/dmehra2102/order-placement/internal/inventory/infrastructure/kafka"
	invpg "github.com/dmehra2102/order-placement/internal/inventory/infrastructure/postgres"
	orderpg "github.com/dmehra2102/order-placement/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/order-placement/pkg/idempotency"
	"github.com/dmehra2102/order-placement/pkg/logging"
	"github.com/dmehra2102/order-placement/pkg/metrics"
	"github.com/dmehra2102/order-placement/pkg/shutdown"
	"github.com/dmehra2102/order-placement/pkg/tracing"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel).With("service", serviceName)

	if err := run(cfg, log); err != nil {
		log.Error("inventory-service failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("inventory-service needs STORE=%s, got %q", config.StorePostgres, cfg.Store)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	hooks := []shutdown.Hook{{Name: "tracing", Fn: shutdownTracing}}

	pool, err := orderpg.NewPool(ctx, cfg.PGURL)
	if err != nil {
		return err
	}
	hooks = append(hooks, shutdown.Hook{Name: "postgres", Fn: func(context.Context) error { pool.Close(); return nil }})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stockMetrics := metrics.NewStockMetrics(reg)

	svc := application.NewService(log, invpg.NewRepository(log, pool), stockMetrics, cfg.LowStockThreshold)

	gs, err := invgrpc.Run(log, cfg.GRPCAddr, invgrpc.NewServer(log, svc))
	if err != nil {
		return err
	}
	hooks = append(hooks, shutdown.Hook{Name: "grpc", Fn: func(ctx context.Context) error {
		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			gs.Stop()
			return ctx.Err()
		}
	}})

	if cfg.KafkaEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		hooks = append(hooks, shutdown.Hook{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }})
		idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

		consumer := invkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.OutboxTopic, cfg.ConsumerGroup, svc, idem, stockMetrics)
		consumed := make(chan struct{})
		go func() {
			defer close(consumed)
			if err := consumer.Run(ctx); err != nil {
				log.Error("consumer stopped", "err", err)
				cancel()
			}
		}()
		hooks = append(hooks, shutdown.Hook{Name: "consumer", Fn: func(ctx context.Context) error {
			select {
			case <-consumed:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}})
	} else {
		log.Warn("kafka disabled, low stock checks are off")
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metrics.Handler(reg))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	drain := []shutdown.Hook{{Name: "metrics", Fn: metricsSrv.Shutdown}}
	for i := len(hooks) - 1; i >= 0; i-- {
		drain = append(drain, hooks[i])
	}
	err = shutdown.Drain(log, cfg.ShutdownTimeout, drain...)
	log.Info("inventory-service shutdown complete")
	return err
}
