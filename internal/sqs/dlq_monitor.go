package sqs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"delivery/internal/codec"
	"delivery/internal/config"
	"delivery/internal/interfaces"
	"delivery/internal/metrics"
	"delivery/internal/models"
)

// DLQMonitorOptions are the polling settings of the dead-letter monitor
type DLQMonitorOptions struct {
	MaxMessages int
	WaitTime    time.Duration
	Interval    time.Duration
	StopTimeout time.Duration
	Breaker     config.CircuitBreakerConfig
}

// DLQMonitorOptionsFromConfig collects monitor options from the loaded configuration
func DLQMonitorOptionsFromConfig(cfg *config.Config) DLQMonitorOptions {
	return DLQMonitorOptions{
		MaxMessages: cfg.DLQMonitor.MaxMessages,
		WaitTime:    cfg.DLQMonitor.WaitTime,
		Interval:    cfg.DLQMonitor.Interval,
		StopTimeout: cfg.Consumer.StopTimeout,
		Breaker:     cfg.CircuitBreaker,
	}
}

// A DeadLetter is a decoded order taken from a dead-letter queue
type DeadLetter struct {
	MessageID string
	Event     *models.OrderEvent
}

// A Reprocessor gets a dead-lettered order a second chance. queue is the primary queue the order came from
type Reprocessor interface {
	Reprocess(ctx context.Context, queue models.QueueType, letter DeadLetter) error
}

// ReprocessFunc adapts a function to Reprocessor
type ReprocessFunc func(ctx context.Context, queue models.QueueType, letter DeadLetter) error

func (f ReprocessFunc) Reprocess(ctx context.Context, queue models.QueueType, letter DeadLetter) error {
	return f(ctx, queue, letter)
}

// A Republisher sends an order under an explicit FIFO deduplication id
type Republisher interface {
	Republish(ctx context.Context, event *models.OrderEvent, target models.QueueType, dedupID string) (string, error)
}

// RepublishTo returns a Reprocessor that publishes the order to its primary queue again.
// FIFO sends are deduplicated by order id and dead-letter message id, so the queue accepts the order
// even inside the dedup window of its first send, and a repeated attempt on the same message is dropped.
func RepublishTo(publisher Republisher) Reprocessor {
	return ReprocessFunc(
		func(ctx context.Context, queue models.QueueType, letter DeadLetter) error {
			dedupID := ReprocessDeduplicationID(letter.Event.OrderID, letter.MessageID)
			_, err := publisher.Republish(ctx, letter.Event, queue, dedupID)
			return err
		},
	)
}

// An Observation is the result of the latest poll of a dead-letter queue
type Observation struct {
	Queue    string    `json:"queue"`
	Messages int       `json:"messages"`
	At       time.Time `json:"at"`
}

// A ReprocessResult summarizes one Reprocess call
type ReprocessResult struct {
	Received     int `json:"received"`
	Reprocessed  int `json:"reprocessed"`
	Failed       int `json:"failed"`
	DeleteFailed int `json:"deleteFailed"`
}

type deadLetterQueue struct {
	primary models.QueueType
	name    string
	url     string
	worker  *worker
	breaker *gobreaker.CircuitBreaker
}

// A DLQMonitor reports what arrives in the dead-letter queues. Its polling never deletes anything:
// messages stay until Delete or Reprocess is called by an operator.
type DLQMonitor struct {
	queues    []*deadLetterQueue
	transport interfaces.Transport
	codec     codec.JSON
	opts      DLQMonitorOptions
	metrics   *metrics.Metrics
	logger    *zerolog.Logger

	mu          sync.RWMutex
	reprocessor Reprocessor
	last        map[string]Observation
}

// NewDLQMonitor creates a stopped monitor. An empty url disables the worker of that queue
func NewDLQMonitor(
	standardDLQ, fifoDLQ string, transport interfaces.Transport, opts DLQMonitorOptions, m *metrics.Metrics,
	logger *zerolog.Logger,
) *DLQMonitor {
	mon := &DLQMonitor{
		transport: transport,
		opts:      opts,
		metrics:   m,
		logger:    logger,
		last:      make(map[string]Observation),
	}
	for _, q := range []struct {
		primary models.QueueType
		url     string
	}{
		{models.QueueStandard, standardDLQ},
		{models.QueueFIFO, fifoDLQ},
	} {
		name := string(q.primary) + "_DLQ"
		mon.queues = append(
			mon.queues, &deadLetterQueue{
				primary: q.primary,
				name:    name,
				url:     q.url,
				worker:  newWorker("dlq-monitor-"+name, opts.StopTimeout, logger),
				breaker: newBreaker("dlq-monitor-"+name, opts.Breaker),
			},
		)
	}
	return mon
}

// SetReprocessor sets the hook used by Reprocess
func (m *DLQMonitor) SetReprocessor(r Reprocessor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reprocessor = r
}

// Start launches one worker per configured dead-letter queue
func (m *DLQMonitor) Start(ctx context.Context) error {
	for _, q := range m.queues {
		if q.url == "" {
			m.logger.Warn().Str("queue", q.name).Msg("dead-letter queue url is not configured, monitor is disabled")
			continue
		}
		if err := q.worker.start(ctx, m.inspector(q)); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops all workers concurrently and returns their joined errors
func (m *DLQMonitor) Stop(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, q := range m.queues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.worker.stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// States returns the worker state of every configured dead-letter queue
func (m *DLQMonitor) States() map[string]State {
	states := make(map[string]State)
	for _, q := range m.queues {
		if q.url != "" {
			states[q.name] = q.worker.State()
		}
	}
	return states
}

// LastObservations returns the latest poll result of each queue that has been polled
func (m *DLQMonitor) LastObservations() []Observation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Observation
	for _, q := range m.queues {
		if obs, ok := m.last[q.name]; ok {
			out = append(out, obs)
		}
	}
	return out
}

// Delete removes one message from the dead-letter queue of the given primary queue.
// The polling loop never calls it.
func (m *DLQMonitor) Delete(ctx context.Context, queue models.QueueType, receiptHandle string) error {
	q, err := m.lookup(queue)
	if err != nil {
		return err
	}
	if err := m.transport.Delete(ctx, q.url, receiptHandle); err != nil {
		return err
	}
	m.logger.Info().Str("queue", q.name).Msg("dead-letter message deleted")
	return nil
}

// Reprocess receives up to max messages from the dead-letter queue of queue and passes every decodable
// order to the reprocessor. A message is deleted only after the reprocessor accepted it.
func (m *DLQMonitor) Reprocess(ctx context.Context, queue models.QueueType, max int) (ReprocessResult, error) {
	var result ReprocessResult

	q, err := m.lookup(queue)
	if err != nil {
		return result, err
	}

	m.mu.RLock()
	reprocessor := m.reprocessor
	m.mu.RUnlock()
	if reprocessor == nil {
		return result, ErrNoReprocessor
	}

	if max <= 0 || max > m.opts.MaxMessages {
		max = m.opts.MaxMessages
	}

	envelopes, err := m.transport.Receive(ctx, q.url, max, m.opts.WaitTime)
	if err != nil {
		return result, &PollError{Queue: q.name, Err: err}
	}
	result.Received = len(envelopes)

	for _, env := range envelopes {
		event, err := m.codec.DecodeOrder(env.Body)
		if err != nil {
			result.Failed++
			m.logger.Error().
				Err(err).
				Str("queue", q.name).
				Str("message_id", env.MessageID).
				Msg("dead-letter message cannot be decoded, it is not reprocessed")
			continue
		}

		if err := reprocessor.Reprocess(ctx, q.primary, DeadLetter{MessageID: env.MessageID, Event: event}); err != nil {
			result.Failed++
			m.logger.Error().
				Err(err).
				Str("queue", q.name).
				Str("message_id", env.MessageID).
				Str("order_id", event.OrderID).
				Msg("failed to reprocess dead-letter message, it stays in the queue")
			continue
		}

		if err := m.transport.Delete(ctx, q.url, env.ReceiptHandle); err != nil {
			result.DeleteFailed++
			m.logger.Error().
				Err(err).
				Str("queue", q.name).
				Str("message_id", env.MessageID).
				Str("order_id", event.OrderID).
				Msg("reprocessed dead-letter message could not be deleted")
			continue
		}
		result.Reprocessed++
		m.logger.Info().
			Str("queue", q.name).
			Str("message_id", env.MessageID).
			Str("order_id", event.OrderID).
			Msg("dead-letter message reprocessed")
	}

	return result, nil
}

func (m *DLQMonitor) lookup(queue models.QueueType) (*deadLetterQueue, error) {
	for _, q := range m.queues {
		if q.primary != queue {
			continue
		}
		if q.url == "" {
			return nil, &ConfigurationError{Queue: queue, Err: ErrQueueNotConfigured}
		}
		return q, nil
	}
	return nil, &ConfigurationError{Queue: queue, Err: ErrUnknownQueue}
}

func (m *DLQMonitor) inspector(q *deadLetterQueue) func(context.Context) {
	return func(ctx context.Context) {
		m.inspect(ctx, q)
		q.worker.sleep(ctx, m.opts.Interval)
	}
}

// inspect polls the queue once and reports every message it sees
func (m *DLQMonitor) inspect(ctx context.Context, q *deadLetterQueue) {
	result, err := q.breaker.Execute(
		func() (interface{}, error) {
			return m.transport.Receive(ctx, q.url, m.opts.MaxMessages, m.opts.WaitTime)
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.metrics.IncPollErrors(q.name)
		m.logger.Error().
			Err(&PollError{Queue: q.name, Err: err}).
			Str("queue", q.name).
			Msg("failed to check dead-letter queue")
		return
	}

	envelopes := result.([]models.Envelope)
	m.mu.Lock()
	m.last[q.name] = Observation{Queue: q.name, Messages: len(envelopes), At: time.Now()}
	m.mu.Unlock()

	if len(envelopes) == 0 {
		return
	}
	m.metrics.AddDeadLetterObserved(q.name, len(envelopes))

	for _, env := range envelopes {
		event, err := m.codec.DecodeOrder(env.Body)
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("queue", q.name).
				Str("message_id", env.MessageID).
				Int("receive_count", env.ReceiveCount).
				Str("raw_message", env.Body).
				Msg("undecodable message in dead-letter queue")
			continue
		}
		m.logger.Error().
			Str("queue", q.name).
			Str("message_id", env.MessageID).
			Str("order_id", event.OrderID).
			Str("customer_id", event.CustomerID).
			Strs("products", event.ProductNames()).
			Float64("total_amount", event.TotalAmount).
			Int("receive_count", env.ReceiveCount).
			Msg("order in dead-letter queue needs manual intervention")
	}
}
