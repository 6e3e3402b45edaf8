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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-placement/internal/config"
	"github.com/dmehra2102/order-placement/internal/order/application"
	ordergrpc "github.com/dmehra2102/order-placement/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/order-placement/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/order-placement/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/order-placement/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/order-placement/internal/order/infrastructure/postgres"
	ordersqlite "github.com/dmehra2102/order-placement/internal/order/infrastructure/sqlite"
	"github.com/dmehra2102/order-placement/pkg/idempotency"
	"github.com/dmehra2102/order-placement/pkg/logging"
	"github.com/dmehra2102/order-placement/pkg/metrics"
	"github.com/dmehra2102/order-placement/pkg/outbox"
	"github.com/dmehra2102/order-placement/pkg/shutdown"
	"github.com/dmehra2102/order-placement/pkg/tracing"
)

const (
	serviceName     = "order-service"
	topicPartitions = 3
)

// orderBackend is everything the service and relay need from one store.
type orderBackend interface {
	application.CustomerFinder
	application.ProductFinder
	application.OrderStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel).With("service", serviceName)

	if err := run(cfg, log); err != nil {
		log.Error("order-service failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	hooks := []shutdown.Hook{{Name: "tracing", Fn: shutdownTracing}}

	backend, outboxStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	hooks = append(hooks, shutdown.Hook{Name: "store", Fn: func(context.Context) error { return closeStore() }})

	var products application.ProductFinder = backend
	if cfg.ProductSource == config.ProductSourceGRPC {
		client, err := ordergrpc.NewInventoryClient(log, cfg.InventoryAddr)
		if err != nil {
			return err
		}
		hooks = append(hooks, shutdown.Hook{Name: "inventory client", Fn: func(context.Context) error { return client.Close() }})
		products = client
		log.Info("products served by inventory", "addr", cfg.InventoryAddr)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "order_service")
	placementMetrics := metrics.NewPlacementMetrics(reg)
	outboxMetrics := metrics.NewOutboxMetrics(reg)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	hooks = append(hooks, shutdown.Hook{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }})
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	if cfg.KafkaEnabled() {
		if err := orderkafka.EnsureTopic(ctx, cfg.KafkaBrokers[0], cfg.OutboxTopic, topicPartitions); err != nil {
			log.Warn("ensure topic failed", "topic", cfg.OutboxTopic, "err", err)
		}
		writer := orderkafka.NewWriter(log, cfg.KafkaBrokers)
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relayID := fmt.Sprintf("%s-%d", serviceName, os.Getpid())
		relay := outbox.NewRelay(log, outboxStore, dispatch, relayID, outbox.WithObserver(outboxMetrics))
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
		hooks = append(hooks, shutdown.Hook{Name: "relay", Fn: func(ctx context.Context) error {
			select {
			case <-relayDone:
			case <-ctx.Done():
				return ctx.Err()
			}
			return writer.Close()
		}})
	} else {
		log.Warn("kafka disabled, outbox events stay pending")
	}

	svc := application.NewService(log, backend, products, backend, placementMetrics)
	handler := orderhttp.NewHandler(log, svc, idem)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(serverMetrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// The HTTP server stops first so no order is accepted after the relay drains.
	hooks = append([]shutdown.Hook{{Name: "http", Fn: srv.Shutdown}}, reverse(hooks)...)
	err = shutdown.Drain(log, cfg.ShutdownTimeout, hooks...)
	log.Info("order-service shutdown complete")
	return err
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (orderBackend, outbox.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := ordersqlite.Open(log, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, ordersqlite.NewOutboxStore(s), s.Close, nil
	case config.StoreMemory:
		s := memory.NewStore()
		log.Warn("using in-memory store, data is lost on exit")
		return s, memory.NewOutboxStore(s), func() error { return nil }, nil
	default:
		pool, err := orderpg.NewPool(ctx, cfg.PGURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := orderpg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("using postgres store")
		return orderpg.NewRepository(log, pool), orderpg.NewOutboxStore(log, pool), func() error { pool.Close(); return nil }, nil
	}
}

func reverse(hooks []shutdown.Hook) []shutdown.Hook {
	out := make([]shutdown.Hook, 0, len(hooks))
	for i := len(hooks) - 1; i >= 0; i-- {
		out = append(out, hooks[i])
	}
	return out
}
