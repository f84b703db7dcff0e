package sqs

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"delivery/internal/codec"
	"delivery/internal/config"
	"delivery/internal/interfaces"
	"delivery/internal/metrics"
	"delivery/internal/models"
)

const processTimeout = 30 * time.Second

// ConsumerOptions are the polling settings shared by the standard and FIFO consumers
type ConsumerOptions struct {
	MaxMessages      int
	WaitTime         time.Duration
	PollErrorBackoff time.Duration
	StopTimeout      time.Duration
	AckAttempts      int
	AckDelay         time.Duration
	DedupWindow      time.Duration
	DedupCapacity    int
	Breaker          config.CircuitBreakerConfig
}

// ConsumerOptionsFromConfig collects consumer options from the loaded configuration
func ConsumerOptionsFromConfig(cfg *config.Config) ConsumerOptions {
	return ConsumerOptions{
		MaxMessages:      cfg.Consumer.MaxMessages,
		WaitTime:         cfg.Consumer.WaitTime,
		PollErrorBackoff: cfg.Consumer.PollErrorBackoff,
		StopTimeout:      cfg.Consumer.StopTimeout,
		AckAttempts:      cfg.Consumer.AckAttempts,
		AckDelay:         cfg.Consumer.AckDelay,
		DedupWindow:      cfg.Consumer.DedupWindow,
		DedupCapacity:    cfg.Consumer.DedupCapacity,
		Breaker:          cfg.CircuitBreaker,
	}
}

func newBreaker(name string, cfg config.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenMaxCalls),
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if cfg.MaxFailers > 0 {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailers)
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// consumer holds what the standard and FIFO consumers share: one worker,
// a breaker around receives, the decode step and the acknowledgement.
type consumer struct {
	*worker

	queue     models.QueueType
	queueURL  string
	transport interfaces.Transport
	processor interfaces.DeliveryProcessor
	codec     codec.JSON
	opts      ConsumerOptions
	breaker   *gobreaker.CircuitBreaker
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
}

func newConsumer(
	name string, queue models.QueueType, queueURL string, transport interfaces.Transport,
	processor interfaces.DeliveryProcessor, opts ConsumerOptions, m *metrics.Metrics, logger *zerolog.Logger,
) *consumer {
	return &consumer{
		worker:    newWorker(name, opts.StopTimeout, logger),
		queue:     queue,
		queueURL:  queueURL,
		transport: transport,
		processor: processor,
		opts:      opts,
		breaker:   newBreaker(name, opts.Breaker),
		metrics:   m,
		logger:    logger,
	}
}

// begin starts the worker unless the queue url is missing, in which case the consumer stays stopped
func (c *consumer) begin(ctx context.Context, iterate func(context.Context)) error {
	if c.queueURL == "" {
		c.logger.Warn().
			Str("queue", string(c.queue)).
			Msg("queue url is not configured, consumer is disabled")
		return nil
	}
	return c.start(ctx, iterate)
}

// poll receives one batch. Failures are logged, followed by a pause, and reported as ok=false
func (c *consumer) poll(ctx context.Context) ([]models.Envelope, bool) {
	result, err := c.breaker.Execute(
		func() (interface{}, error) {
			return c.transport.Receive(ctx, c.queueURL, c.opts.MaxMessages, c.opts.WaitTime)
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		pollErr := &PollError{Queue: string(c.queue), Err: err}
		c.metrics.IncPollErrors(string(c.queue))
		c.logger.Error().
			Err(pollErr).
			Str("queue", string(c.queue)).
			Dur("backoff", c.opts.PollErrorBackoff).
			Msg("failed to receive messages")
		c.sleep(ctx, c.opts.PollErrorBackoff)
		return nil, false
	}

	envelopes := result.([]models.Envelope)
	if len(envelopes) > 0 {
		c.metrics.AddReceived(string(c.queue), len(envelopes))
		c.logger.Debug().
			Str("queue", string(c.queue)).
			Int("count", len(envelopes)).
			Msg("received messages")
	}
	return envelopes, true
}

// decode turns a message body into an order event. A bad body is logged and the message is left alone
func (c *consumer) decode(env models.Envelope) (*models.OrderEvent, error) {
	event, err := c.codec.DecodeOrder(env.Body)
	if err != nil {
		c.metrics.IncProcessed(string(c.queue), metrics.ResultDecode)
		c.logger.Error().
			Err(err).
			Str("queue", string(c.queue)).
			Str("message_id", env.MessageID).
			Int("receive_count", env.ReceiveCount).
			Str("raw_message", env.Body).
			Msg("failed to decode order, message is left for redelivery")
		return nil, err
	}
	return event, nil
}

// process hands the event to the delivery processor
func (c *consumer) process(ctx context.Context, env models.Envelope, event *models.OrderEvent) error {
	start := time.Now()

	processCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	err := c.processor.ProcessOrder(processCtx, event, c.queue)
	c.metrics.ObserveProcessing(string(c.queue), time.Since(start).Seconds())
	if err != nil {
		procErr := &ProcessingError{Queue: c.queue, OrderID: event.OrderID, Err: err}
		c.metrics.IncProcessed(string(c.queue), metrics.ResultFailed)
		c.logger.Error().
			Err(procErr).
			Str("queue", string(c.queue)).
			Str("message_id", env.MessageID).
			Str("order_id", event.OrderID).
			Str("customer_id", event.CustomerID).
			Int("receive_count", env.ReceiveCount).
			Dur("duration", time.Since(start)).
			Msg("failed to process order, message is left for redelivery")
		return procErr
	}
	return nil
}

// ack deletes the message, retrying a bounded number of times
func (c *consumer) ack(ctx context.Context, env models.Envelope, orderID string) error {
	attempts := c.opts.AckAttempts
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			return c.transport.Delete(ctx, c.queueURL, env.ReceiptHandle)
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(c.opts.AckDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(
			func(n uint, err error) {
				c.logger.Warn().
					Err(err).
					Str("queue", string(c.queue)).
					Str("message_id", env.MessageID).
					Uint("attempt", n+1).
					Msg("retrying message delete")
			},
		),
		retry.Context(ctx),
	)
	if err != nil {
		c.metrics.IncProcessed(string(c.queue), metrics.ResultAckFailed)
		c.logger.Error().
			Err(err).
			Str("queue", string(c.queue)).
			Str("message_id", env.MessageID).
			Str("order_id", orderID).
			Msg("failed to delete processed message, it may be delivered again")
		return err
	}
	return nil
}

func (c *consumer) succeeded(env models.Envelope, event *models.OrderEvent, start time.Time) {
	c.metrics.IncProcessed(string(c.queue), metrics.ResultSuccess)
	c.logger.Info().
		Str("queue", string(c.queue)).
		Str("message_id", env.MessageID).
		Str("order_id", event.OrderID).
		Str("customer_id", event.CustomerID).
		Strs("products", event.ProductNames()).
		Float64("total_amount", event.TotalAmount).
		Dur("duration", time.Since(start)).
		Msg("order processed")
}
