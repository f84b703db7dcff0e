package sqs

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"delivery/internal/codec"
	"delivery/internal/config"
	"delivery/internal/metrics"
	"delivery/internal/models"
	"delivery/internal/sqs/sqstest"
)

func testMonitorOptions() DLQMonitorOptions {
	return DLQMonitorOptions{
		MaxMessages: 10,
		WaitTime:    10 * time.Millisecond,
		Interval:    10 * time.Millisecond,
		StopTimeout: time.Second,
		Breaker:     testOptions().Breaker,
	}
}

func seedDLQ(t *testing.T, broker *sqstest.Broker, queues config.QueuesConfig) {
	t.Helper()
	ctx := context.Background()
	body, err := codec.JSON{}.EncodeOrder(newOrder("o1", "c1"))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	for _, b := range []string{body, "garbage"} {
		if _, err := broker.Send(ctx, queues.StandardDLQ, b, nil); err != nil {
			t.Fatalf("error: %v", err)
		}
	}
}

func TestDLQMonitor_NeverDeletes(t *testing.T) {
	broker, queues := newTestBroker()
	seedDLQ(t, broker, queues)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	mon := NewDLQMonitor(queues.StandardDLQ, queues.FIFODLQ, broker, testMonitorOptions(), m, testLogger())
	start(t, mon)

	states := mon.States()
	if len(states) != 2 || states["STANDARD_DLQ"] != StateRunning || states["FIFO_DLQ"] != StateRunning {
		t.Errorf("error: expected two running workers, got %v", states)
	}

	waitFor(t, 2*time.Second, func() bool { return broker.Stats(queues.StandardDLQ).Receives >= 3 })
	mustStop(t, mon)

	if broker.Stats(queues.StandardDLQ).Deletes != 0 || broker.Len(queues.StandardDLQ) != 2 {
		t.Errorf("error: monitor must leave dead-letter messages in place")
	}
	if got := testutil.ToFloat64(m.DeadLetterObserved.WithLabelValues("STANDARD_DLQ")); got < 2 {
		t.Errorf("error: expected observed messages to be counted, got %v", got)
	}

	var found bool
	for _, obs := range mon.LastObservations() {
		if obs.Queue == "STANDARD_DLQ" {
			found = true
			if obs.Messages != 2 || obs.At.IsZero() {
				t.Errorf("error: unexpected observation %+v", obs)
			}
		}
	}
	if !found {
		t.Errorf("error: expected an observation for STANDARD_DLQ")
	}
	for name, state := range mon.States() {
		if state != StateStopped {
			t.Errorf("error: %s should be stopped, got %s", name, state)
		}
	}
}

func TestDLQMonitor_AbsentQueuesAreDisabled(t *testing.T) {
	broker, queues := newTestBroker()
	mon := NewDLQMonitor("", queues.FIFODLQ, broker, testMonitorOptions(), nil, testLogger())
	start(t, mon)

	states := mon.States()
	if _, ok := states["STANDARD_DLQ"]; ok || len(states) != 1 {
		t.Errorf("error: only the FIFO worker should exist, got %v", states)
	}

	none := NewDLQMonitor("", "", broker, testMonitorOptions(), nil, testLogger())
	if err := none.Start(context.Background()); err != nil {
		t.Errorf("error: %v", err)
	}
	if err := none.Stop(context.Background()); err != nil {
		t.Errorf("error: %v", err)
	}
}

func TestDLQMonitor_PollErrorsAreSurvived(t *testing.T) {
	broker, queues := newTestBroker()
	broker.FailReceives(queues.FIFODLQ, 2, errors.New("throttled"))

	m := metrics.NewMetrics(prometheus.NewRegistry())
	mon := NewDLQMonitor("", queues.FIFODLQ, broker, testMonitorOptions(), m, testLogger())
	start(t, mon)

	waitFor(t, 2*time.Second, func() bool { return len(mon.LastObservations()) == 1 })
	if got := testutil.ToFloat64(m.PollErrors.WithLabelValues("FIFO_DLQ")); got != 2 {
		t.Errorf("error: expected 2 poll errors, got %v", got)
	}
}

func TestDLQMonitor_ReprocessDeletesOnlyOnSuccess(t *testing.T) {
	broker, queues := newTestBroker()
	ctx := context.Background()
	p := NewPublisher(broker, queues, nil, testLogger())

	encode := func(o *models.OrderEvent) string {
		body, err := codec.JSON{}.EncodeOrder(o)
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		return body
	}
	for _, body := range []string{encode(newOrder("ok", "c1")), encode(newOrder("rejected", "c2")), "garbage"} {
		if _, err := broker.Send(ctx, queues.StandardDLQ, body, nil); err != nil {
			t.Fatalf("error: %v", err)
		}
	}

	mon := NewDLQMonitor(queues.StandardDLQ, queues.FIFODLQ, broker, testMonitorOptions(), nil, testLogger())

	if _, err := mon.Reprocess(ctx, models.QueueStandard, 10); !errors.Is(err, ErrNoReprocessor) {
		t.Fatalf("error: expected ErrNoReprocessor, got %v", err)
	}

	republish := RepublishTo(p)
	mon.SetReprocessor(
		ReprocessFunc(
			func(ctx context.Context, queue models.QueueType, letter DeadLetter) error {
				if letter.Event.OrderID == "rejected" {
					return errors.New("still broken")
				}
				return republish.Reprocess(ctx, queue, letter)
			},
		),
	)

	result, err := mon.Reprocess(ctx, models.QueueStandard, 0)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	want := ReprocessResult{Received: 3, Reprocessed: 1, Failed: 2}
	if result != want {
		t.Errorf("error: expected %+v, got %+v", want, result)
	}
	if broker.Len(queues.StandardDLQ) != 2 {
		t.Errorf("error: failed messages must stay in the dead-letter queue, got %d", broker.Len(queues.StandardDLQ))
	}

	primary := broker.Messages(queues.Standard)
	if len(primary) != 1 {
		t.Fatalf("error: expected the order republished to the primary queue, got %d", len(primary))
	}
	event, err := codec.JSON{}.DecodeOrder(primary[0].Body)
	if err != nil || event.OrderID != "ok" {
		t.Errorf("error: unexpected republished order %+v, %v", event, err)
	}
}

func TestDLQMonitor_ReprocessFIFOInsideDedupWindow(t *testing.T) {
	broker, queues := newTestBroker()
	ctx := context.Background()
	p := NewPublisher(broker, queues, nil, testLogger())

	var released atomic.Bool
	processor := &recordingProcessor{
		fail: func(event *models.OrderEvent, attempt int) error {
			if !released.Load() {
				return errors.New("downstream unavailable")
			}
			return nil
		},
	}
	c, err := NewFIFOConsumer(queues.FIFO, broker, processor, testOptions(), nil, testLogger())
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	if _, err := p.Publish(ctx, newOrder("o1", "c1"), models.QueueFIFO); err != nil {
		t.Fatalf("error: %v", err)
	}
	start(t, c)
	waitFor(t, 2*time.Second, func() bool { return broker.Len(queues.FIFODLQ) == 1 })

	released.Store(true)
	mon := NewDLQMonitor(queues.StandardDLQ, queues.FIFODLQ, broker, testMonitorOptions(), nil, testLogger())
	mon.SetReprocessor(RepublishTo(p))

	result, err := mon.Reprocess(ctx, models.QueueFIFO, 10)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if result != (ReprocessResult{Received: 1, Reprocessed: 1}) {
		t.Errorf("error: unexpected result %+v", result)
	}

	waitFor(t, 2*time.Second, func() bool { return slices.Contains(processor.processedIDs(), "o1") })
	if broker.Len(queues.FIFODLQ) != 0 || broker.Len(queues.FIFO) != 0 {
		t.Errorf("error: expected both queues drained after processing")
	}
}

func TestDLQMonitor_ReprocessUnconfiguredQueue(t *testing.T) {
	broker, queues := newTestBroker()
	mon := NewDLQMonitor(queues.StandardDLQ, "", broker, testMonitorOptions(), nil, testLogger())
	mon.SetReprocessor(ReprocessFunc(func(context.Context, models.QueueType, DeadLetter) error { return nil }))

	_, err := mon.Reprocess(context.Background(), models.QueueFIFO, 1)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrQueueNotConfigured) {
		t.Errorf("error: expected ConfigurationError, got %v", err)
	}
	if _, err := mon.Reprocess(context.Background(), models.QueueType("X"), 1); !errors.Is(err, ErrUnknownQueue) {
		t.Errorf("error: expected ErrUnknownQueue, got %v", err)
	}
}

func TestDLQMonitor_Delete(t *testing.T) {
	broker, queues := newTestBroker()
	seedDLQ(t, broker, queues)
	mon := NewDLQMonitor(queues.StandardDLQ, "", broker, testMonitorOptions(), nil, testLogger())
	ctx := context.Background()

	envelopes, err := broker.Receive(ctx, queues.StandardDLQ, 1, 0)
	if err != nil || len(envelopes) != 1 {
		t.Fatalf("error: expected one message, got %d, %v", len(envelopes), err)
	}
	if err := mon.Delete(ctx, models.QueueStandard, envelopes[0].ReceiptHandle); err != nil {
		t.Fatalf("error: %v", err)
	}
	if broker.Len(queues.StandardDLQ) != 1 {
		t.Errorf("error: expected one message left, got %d", broker.Len(queues.StandardDLQ))
	}
	if err := mon.Delete(ctx, models.QueueFIFO, "whatever"); !errors.Is(err, ErrQueueNotConfigured) {
		t.Errorf("error: expected ErrQueueNotConfigured, got %v", err)
	}
}
