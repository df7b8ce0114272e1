// Package notificationservice consumes order placed events and notifies the
// customer. Notification is a log line for now.
package notificationservice

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer is the part of a kafka reader the service needs.
type Consumer interface {
	ReadMessage(ctx context.Context) (*kafkago.Message, error)
	Close() error
}

type MessageHandler interface {
	HandleOrderPlaced(ctx context.Context, msg kafkago.Message) error
}

type ConsumerService struct {
	consumer Consumer
	handler  MessageHandler
	logger   *zap.Logger

	// readBackOff paces retries after failed reads.
	readBackOff backoff.BackOff
}

func NewConsumerService(consumer Consumer, handler MessageHandler, logger *zap.Logger) *ConsumerService {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	return &ConsumerService{consumer: consumer, handler: handler, logger: logger, readBackOff: b}
}

// Start reads until ctx is done or the reader is closed. Failed reads are
// logged and retried with backoff; handling errors drop the message.
func (c *ConsumerService) Start(ctx context.Context) error {
	c.logger.Info("kafka consumer started, waiting for messages")
	c.readBackOff.Reset()

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("context done, exiting kafka read loop", zap.Error(err))
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("kafka reader closed, exiting read loop")
				return nil
			}

			wait := c.readBackOff.NextBackOff()
			c.logger.Error("error reading from kafka", zap.Error(err), zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				c.logger.Info("context done, exiting kafka read loop", zap.Error(ctx.Err()))
				return nil
			case <-time.After(wait):
			}
			continue
		}
		c.readBackOff.Reset()

		if err := c.handler.HandleOrderPlaced(ctx, *msg); err != nil {
			c.logger.Warn("order placed event dropped",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}
