package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"delivery/internal/codec"
	"delivery/internal/config"
	"delivery/internal/interfaces"
	"delivery/internal/metrics"
	"delivery/internal/models"
)

// A Publisher sends order events to the standard or FIFO queue.
// It keeps no state between calls and never retries.
type Publisher struct {
	transport interfaces.Transport
	codec     codec.JSON
	queues    map[models.QueueType]string
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
}

// NewPublisher creates a publisher for the primary queues in cfg. A nil metrics records nothing
func NewPublisher(
	transport interfaces.Transport, cfg config.QueuesConfig, m *metrics.Metrics, logger *zerolog.Logger,
) *Publisher {
	return &Publisher{
		transport: transport,
		queues: map[models.QueueType]string{
			models.QueueStandard: cfg.Standard,
			models.QueueFIFO:     cfg.FIFO,
		},
		metrics: m,
		logger:  logger,
	}
}

// Configured reports whether target has a queue url
func (p *Publisher) Configured(target models.QueueType) bool {
	return p.queues[target] != ""
}

// Publish encodes event and sends it to the target queue, returning the message id.
// FIFO sends are grouped by customer and deduplicated by order.
func (p *Publisher) Publish(ctx context.Context, event *models.OrderEvent, target models.QueueType) (string, error) {
	return p.send(ctx, event, target, event.OrderID)
}

// Republish sends event again under dedupID instead of the order id, so a FIFO queue does not
// drop it as a duplicate of the first send. Standard sends ignore dedupID
func (p *Publisher) Republish(
	ctx context.Context, event *models.OrderEvent, target models.QueueType, dedupID string,
) (string, error) {
	if dedupID == "" {
		dedupID = event.OrderID
	}
	return p.send(ctx, event, target, dedupID)
}

// ReprocessDeduplicationID is the FIFO deduplication id of a dead-lettered order sent back to its queue.
// It is the same for every attempt on one dead-letter message
func ReprocessDeduplicationID(orderID, deadLetterMessageID string) string {
	return orderID + ":" + deadLetterMessageID
}

func (p *Publisher) send(
	ctx context.Context, event *models.OrderEvent, target models.QueueType, dedupID string,
) (string, error) {
	start := time.Now()

	queueURL, known := p.queues[target]
	if !known {
		p.metrics.IncPublished(string(target), metrics.ResultError)
		return "", &ConfigurationError{Queue: target, Err: ErrUnknownQueue}
	}
	if queueURL == "" {
		p.metrics.IncPublished(string(target), metrics.ResultError)
		p.logger.Error().
			Str("queue", string(target)).
			Str("order_id", event.OrderID).
			Msg("queue url is not configured, order is not published")
		return "", &ConfigurationError{Queue: target, Err: ErrQueueNotConfigured}
	}

	body, err := p.codec.EncodeOrder(event)
	if err != nil {
		p.metrics.IncPublished(string(target), metrics.ResultError)
		return "", &PublishError{Queue: target, OrderID: event.OrderID, Err: err}
	}

	var attrs *models.SendAttributes
	if target == models.QueueFIFO {
		attrs = &models.SendAttributes{
			GroupID:         event.CustomerID,
			DeduplicationID: dedupID,
		}
	}

	messageID, err := p.transport.Send(ctx, queueURL, body, attrs)
	if err != nil {
		p.metrics.IncPublished(string(target), metrics.ResultError)
		p.logger.Error().
			Err(err).
			Str("queue", string(target)).
			Str("order_id", event.OrderID).
			Str("customer_id", event.CustomerID).
			Dur("duration", time.Since(start)).
			Msg("failed to publish order")
		return "", &PublishError{Queue: target, OrderID: event.OrderID, Err: fmt.Errorf("send: %w", err)}
	}

	p.metrics.IncPublished(string(target), metrics.ResultSuccess)
	p.logger.Info().
		Str("queue", string(target)).
		Str("order_id", event.OrderID).
		Str("customer_id", event.CustomerID).
		Str("message_id", messageID).
		Dur("duration", time.Since(start)).
		Msg("order published")

	return messageID, nil
}
