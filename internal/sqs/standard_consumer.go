package sqs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"delivery/internal/interfaces"
	"delivery/internal/metrics"
	"delivery/internal/models"
)

// A StandardConsumer processes the standard queue with at-least-once semantics.
// Orders containing a product named with the failure marker are failed on purpose and left on the queue.
type StandardConsumer struct {
	*consumer

	failureMarker string
	attempts      *AttemptCounter
}

// NewStandardConsumer creates a stopped consumer. An empty failureMarker disables the test failure path
func NewStandardConsumer(
	queueURL string, transport interfaces.Transport, processor interfaces.DeliveryProcessor, opts ConsumerOptions,
	failureMarker string, m *metrics.Metrics, logger *zerolog.Logger,
) *StandardConsumer {
	return &StandardConsumer{
		consumer: newConsumer(
			"standard-consumer", models.QueueStandard, queueURL, transport, processor, opts, m, logger,
		),
		failureMarker: failureMarker,
		attempts:      NewAttemptCounter(),
	}
}

// Start launches the polling worker. Without a queue url it logs a warning and does nothing
func (c *StandardConsumer) Start(ctx context.Context) error {
	return c.begin(ctx, c.iterate)
}

// Stop waits for the current iteration to finish, cancelling it after the stop timeout
func (c *StandardConsumer) Stop(ctx context.Context) error {
	return c.stop(ctx)
}

// Attempts returns the intentional failure counter
func (c *StandardConsumer) Attempts() *AttemptCounter {
	return c.attempts
}

func (c *StandardConsumer) iterate(ctx context.Context) {
	envelopes, ok := c.poll(ctx)
	if !ok {
		return
	}
	for _, env := range envelopes {
		if ctx.Err() != nil {
			return
		}
		_ = c.handle(ctx, env)
	}
}

func (c *StandardConsumer) handle(ctx context.Context, env models.Envelope) error {
	start := time.Now()

	event, err := c.decode(env)
	if err != nil {
		return err
	}

	if event.HasProductNamed(c.failureMarker) {
		attempt := c.attempts.Increment(event.OrderID)
		failErr := &ProcessingError{Queue: c.queue, OrderID: event.OrderID, Err: ErrIntentionalFailure}
		c.metrics.IncProcessed(string(c.queue), metrics.ResultFailed)
		c.logger.Error().
			Err(failErr).
			Str("queue", string(c.queue)).
			Str("message_id", env.MessageID).
			Str("order_id", event.OrderID).
			Int("attempt", attempt).
			Int("receive_count", env.ReceiveCount).
			Msg("order hit the failure marker, message is left for redelivery")
		return failErr
	}

	if err := c.process(ctx, env, event); err != nil {
		return err
	}
	if err := c.ack(ctx, env, event.OrderID); err != nil {
		return err
	}

	c.succeeded(env, event, start)
	return nil
}
