package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"delivery/internal/cache/lru_cache"
	"delivery/internal/interfaces"
	"delivery/internal/metrics"
	"delivery/internal/models"
)

// A FIFOConsumer processes the FIFO queue in group order. Each message is deleted before the next one
// is handled, and once a message of a group fails the rest of that group in the batch is left untouched.
// Dedup keys of processed messages are remembered for the dedup window.
type FIFOConsumer struct {
	*consumer

	processed interfaces.Cache[string, time.Time]
}

// NewFIFOConsumer creates a stopped consumer with a dedup set sized by opts
func NewFIFOConsumer(
	queueURL string, transport interfaces.Transport, processor interfaces.DeliveryProcessor, opts ConsumerOptions,
	m *metrics.Metrics, logger *zerolog.Logger,
) (*FIFOConsumer, error) {
	processed, err := lru_cache.NewLRUCache[string, time.Time](opts.DedupCapacity, lru_cache.WithTTL(opts.DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup set: %w", err)
	}

	return &FIFOConsumer{
		consumer:  newConsumer("fifo-consumer", models.QueueFIFO, queueURL, transport, processor, opts, m, logger),
		processed: processed,
	}, nil
}

// Start launches the polling worker. Without a queue url it logs a warning and does nothing
func (c *FIFOConsumer) Start(ctx context.Context) error {
	return c.begin(ctx, c.iterate)
}

// Stop waits for the current iteration to finish, cancelling it after the stop timeout
func (c *FIFOConsumer) Stop(ctx context.Context) error {
	return c.stop(ctx)
}

func (c *FIFOConsumer) iterate(ctx context.Context) {
	envelopes, ok := c.poll(ctx)
	if !ok {
		return
	}

	failedGroups := make(map[string]struct{})
	for _, env := range envelopes {
		if ctx.Err() != nil {
			return
		}
		if _, failed := failedGroups[env.GroupID]; failed {
			c.metrics.IncProcessed(string(c.queue), metrics.ResultSkipped)
			c.logger.Warn().
				Str("queue", string(c.queue)).
				Str("message_id", env.MessageID).
				Str("group_id", env.GroupID).
				Msg("earlier message of the group failed, leaving message for redelivery")
			continue
		}
		if err := c.handle(ctx, env); err != nil {
			failedGroups[env.GroupID] = struct{}{}
		}
	}
}

func (c *FIFOConsumer) handle(ctx context.Context, env models.Envelope) error {
	start := time.Now()

	event, err := c.decode(env)
	if err != nil {
		return err
	}

	key := env.DeduplicationID
	if key == "" {
		key = event.OrderID
	}

	if c.processed.Contains(key) {
		c.metrics.IncProcessed(string(c.queue), metrics.ResultDuplicate)
		c.logger.Info().
			Str("queue", string(c.queue)).
			Str("message_id", env.MessageID).
			Str("order_id", event.OrderID).
			Str("dedup_id", key).
			Msg("order was already processed, acknowledging duplicate")
		return c.ack(ctx, env, event.OrderID)
	}

	if err := c.process(ctx, env, event); err != nil {
		return err
	}
	c.processed.Set(key, time.Now())

	if err := c.ack(ctx, env, event.OrderID); err != nil {
		return err
	}

	c.succeeded(env, event, start)
	return nil
}
