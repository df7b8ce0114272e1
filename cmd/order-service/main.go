package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/config"
	"github.com/jcmexdev/order-placement/internal/order-service/adapters/httpx"
	"github.com/jcmexdev/order-placement/internal/order-service/adapters/inventory"
	"github.com/jcmexdev/order-placement/internal/order-service/adapters/kafka"
	"github.com/jcmexdev/order-placement/internal/order-service/adapters/postgres"
	"github.com/jcmexdev/order-placement/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/order-placement/internal/order-service/app"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/cache"
	"github.com/jcmexdev/order-placement/internal/pkg/metrics"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

// orderRepository is what both store drivers provide.
type orderRepository interface {
	ports.OrderStore
	ports.OrderReader
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("order-service: %v", err)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Settings{
		ServiceName:   cfg.ServiceName,
		Environment:   cfg.Telemetry.Environment,
		TraceEndpoint: cfg.Telemetry.TraceEndpoint,
		LogEndpoint:   cfg.Telemetry.LogEndpoint,
		LogURLPath:    cfg.Telemetry.LogURLPath,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, tel.Shutdown(shutdownCtx))
	}()
	logger := tel.Logger
	tracer := tel.TracerProvider.Tracer(cfg.ServiceName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	placementMetrics := metrics.NewPlacementMetrics(reg)
	serverMetrics := metrics.NewServerMetrics(reg, "order_service")

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, repo.Close()) }()
	logger.Info("order store ready", zap.String("driver", cfg.StoreDriver))

	var publisher ports.EventPublisher = kafka.DisabledPublisher{}
	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		producer, perr := kafka.NewTracedProducer(brokers, cfg.ServiceName, tel.TracerProvider)
		if perr != nil {
			return perr
		}
		pub := kafka.NewPublisher(producer)
		defer func() { err = multierr.Append(err, pub.Close()) }()
		publisher = pub
	} else {
		logger.Warn("KAFKA_BROKERS not set, order placed events will not be published")
	}

	checks := map[string]httpx.HealthCheck{"store": repo.Ping}

	var idempotency cache.Cache = cache.Noop{ServiceName: cfg.ServiceName}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { err = multierr.Append(err, client.Close()) }()
		idempotency = cache.NewRedisCache(client, cfg.ServiceName)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	inventoryHTTP := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	verifier := inventory.NewClient(cfg.InventoryBaseURL, inventoryHTTP, tracer)

	policies := cfg.InventoryPolicies
	policies.Retry.RetryIf = inventory.IsTransient
	gate := app.NewStockGate(verifier, policies, logger, placementMetrics)
	checks["inventory_circuit"] = func(context.Context) error {
		if gate.BreakerState() == gobreaker.StateOpen {
			return errors.New("circuit open")
		}
		return nil
	}

	orchestrator := app.NewOrchestrator(gate, repo, publisher, logger,
		app.WithTracer(tracer),
		app.WithMetrics(placementMetrics),
		app.WithPublishTimeout(cfg.PublishTimeout),
	)

	handler := httpx.NewHandler(orchestrator, repo, idempotency, cfg.IdempotencyTTL, checks, logger)
	router, err := httpx.NewRouter(handler, logger, serverMetrics, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("order service listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down order service")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (orderRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return sqlite.Open(cfg.SQLitePath)
	}
}
