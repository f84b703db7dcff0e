package sqs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"delivery/internal/config"
	"delivery/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func testOptions() ConsumerOptions {
	return ConsumerOptions{
		MaxMessages:      10,
		WaitTime:         20 * time.Millisecond,
		PollErrorBackoff: 10 * time.Millisecond,
		StopTimeout:      time.Second,
		AckAttempts:      3,
		AckDelay:         time.Millisecond,
		DedupWindow:      5 * time.Minute,
		DedupCapacity:    100,
		Breaker: config.CircuitBreakerConfig{
			MaxFailers:       1000,
			Timeout:          time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

func newOrder(orderID, customerID string, items ...models.OrderItem) *models.OrderEvent {
	if len(items) == 0 {
		items = []models.OrderItem{{ProductID: "p1", ProductName: "widget", Quantity: 2, Price: 9.99}}
	}
	return &models.OrderEvent{
		OrderID:     orderID,
		CustomerID:  customerID,
		Items:       items,
		TotalAmount: models.CalculateTotal(items),
		Timestamp:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// A recordingProcessor is a thread-safe DeliveryProcessor that records what it processed.
// fail is consulted with the attempt number of the order before recording it.
type recordingProcessor struct {
	mu        sync.Mutex
	attempts  map[string]int
	processed []*models.OrderEvent
	queues    []models.QueueType
	fail      func(event *models.OrderEvent, attempt int) error
}

func (p *recordingProcessor) ProcessOrder(ctx context.Context, event *models.OrderEvent, queue models.QueueType) error {
	p.mu.Lock()
	if p.attempts == nil {
		p.attempts = make(map[string]int)
	}
	p.attempts[event.OrderID]++
	attempt := p.attempts[event.OrderID]
	fail := p.fail
	p.mu.Unlock()

	if fail != nil {
		if err := fail(event, attempt); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, event)
	p.queues = append(p.queues, queue)
	return nil
}

func (p *recordingProcessor) processedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.processed))
	for _, e := range p.processed {
		ids = append(ids, e.OrderID)
	}
	return ids
}

func (p *recordingProcessor) processedFor(customerID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, e := range p.processed {
		if e.CustomerID == customerID {
			ids = append(ids, e.OrderID)
		}
	}
	return ids
}

func (p *recordingProcessor) attemptsFor(orderID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attempts[orderID]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("error: condition was not met within %s", timeout)
}

type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// start launches l and stops it when the test ends
func start(t *testing.T, l lifecycle) {
	t.Helper()
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("error: failed to start, %v", err)
	}
	t.Cleanup(func() { _ = l.Stop(context.Background()) })
}

func mustStop(t *testing.T, s lifecycle) {
	t.Helper()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("error: failed to stop, %v", err)
	}
}
