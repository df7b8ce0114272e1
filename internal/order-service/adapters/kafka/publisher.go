// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/contracts"
)

// ErrDisabled is returned by DisabledPublisher.
var ErrDisabled = errors.New("kafka disabled")

// Producer is the part of a kafka writer the publisher needs.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewTracedProducer returns a writer that injects the trace context of each
// publish into the message headers. Messages carry their own topic, so the
// writer is not bound to one.
func NewTracedProducer(brokers []string, clientID string, tp trace.TracerProvider) (Producer, error) {
	base := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}

	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingSystemKafka,
				attribute.String("messaging.kafka.client_id", clientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: traced writer: %w", err)
	}
	return w, nil
}

var (
	_ ports.EventPublisher = (*Publisher)(nil)
	_ ports.EventPublisher = DisabledPublisher{}
)

// Publisher writes order events as JSON, keyed by order number so every event
// of one order lands on the same partition.
type Publisher struct {
	producer Producer
}

func NewPublisher(producer Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event contracts.OrderPlacedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(event.OrderNumber),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// DisabledPublisher stands in when no brokers are configured. Every publish
// fails with ErrDisabled so the gap shows up as a notify failure.
type DisabledPublisher struct{}

func (DisabledPublisher) Publish(context.Context, string, contracts.OrderPlacedEvent) error {
	return ErrDisabled
}
