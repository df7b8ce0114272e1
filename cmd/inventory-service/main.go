package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/config"
	inventoryservice "github.com/jcmexdev/order-placement/internal/inventory-service"
	"github.com/jcmexdev/order-placement/internal/inventory-service/domain"
	"github.com/jcmexdev/order-placement/internal/inventory-service/httpx"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("inventory-service: %v", err)
	}
}

func run() (err error) {
	cfg, err := config.LoadInventory()
	if err != nil {
		return err
	}
	seed, err := domain.ParseSeed(cfg.SeedStock)
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

	stock := inventoryservice.NewStock(seed, tel.Logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(httpx.NewHandler(stock), tel.Logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		tel.Logger.Info("inventory service listening", zap.String("addr", cfg.HTTPAddr), zap.Int("skus", len(seed)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
