package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"

	"github.com/jcmexdev/order-placement/internal/config"
	notificationservice "github.com/jcmexdev/order-placement/internal/notification-service"
	"github.com/jcmexdev/order-placement/internal/order-service/adapters/kafka"
	"github.com/jcmexdev/order-placement/internal/pkg/contracts"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("notification-service: %v", err)
	}
}

func run() (err error) {
	cfg, err := config.LoadNotification()
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

	base := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  kafka.ParseBrokers(cfg.KafkaBrokers),
		Topic:    contracts.NotificationTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	reader, err := otelkafka.NewReader(base)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, reader.Close()) }()

	handler := notificationservice.NewHandler(
		otel.GetTextMapPropagator(),
		tel.TracerProvider.Tracer(cfg.ServiceName),
		tel.Logger,
	)
	return notificationservice.NewConsumerService(reader, handler, tel.Logger).Start(ctx)
}
