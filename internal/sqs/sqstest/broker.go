// Package sqstest provides an in-memory queue transport that behaves like SQS closely enough for tests:
// receipt handles, visibility timeouts, FIFO groups, deduplication and redrive to a dead-letter queue.
package sqstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"delivery/internal/models"
)

const pollInterval = 5 * time.Millisecond

var (
	ErrUnknownQueue         = errors.New("queue does not exist")
	ErrMissingGroup         = errors.New("fifo message requires a group id")
	ErrMissingDeduplication = errors.New("fifo message requires a deduplication id")
	ErrInvalidReceiptHandle = errors.New("receipt handle is invalid")
)

// QueueOptions configure a queue. A zero VisibilityTimeout makes received messages visible again at once
type QueueOptions struct {
	FIFO              bool
	VisibilityTimeout time.Duration
	DedupWindow       time.Duration
	DeadLetterURL     string
	MaxReceiveCount   int
}

// Stats counts the calls a queue has served
type Stats struct {
	Sends     int
	Receives  int
	Delivered int
	Deletes   int
}

// A Message is a snapshot of a stored message
type Message struct {
	ID           string
	Body         string
	GroupID      string
	ReceiveCount int
}

type message struct {
	id           string
	body         string
	group        string
	dedup        string
	receipt      string
	visibleAt    time.Time
	receiveCount int
}

type dedupEntry struct {
	messageID string
	at        time.Time
}

type queue struct {
	opts        QueueOptions
	messages    []*message
	dedup       map[string]dedupEntry
	stats       Stats
	failReceive []error
	failDelete  []error
}

// A Broker is an in-memory interfaces.Transport. It is safe for concurrent use
type Broker struct {
	mu     sync.Mutex
	queues map[string]*queue
}

func NewBroker() *Broker {
	return &Broker{queues: make(map[string]*queue)}
}

// CreateQueue registers a queue and returns its url
func (b *Broker) CreateQueue(name string, opts QueueOptions) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if opts.FIFO && opts.DedupWindow == 0 {
		opts.DedupWindow = 5 * time.Minute
	}
	url := "http://sqs.local/000000000000/" + name
	b.queues[url] = &queue{opts: opts, dedup: make(map[string]dedupEntry)}
	return url
}

// FailReceives makes the next n receives on url return err
func (b *Broker) FailReceives(url string, n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[url]; ok {
		for range n {
			q.failReceive = append(q.failReceive, err)
		}
	}
}

// FailDeletes makes the next n deletes on url return err
func (b *Broker) FailDeletes(url string, n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[url]; ok {
		for range n {
			q.failDelete = append(q.failDelete, err)
		}
	}
}

func (b *Broker) Send(ctx context.Context, queueURL, body string, attrs *models.SendAttributes) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queueURL]
	if !ok {
		return "", fmt.Errorf("%s: %w", queueURL, ErrUnknownQueue)
	}

	msg := &message{id: uuid.NewString(), body: body}
	if q.opts.FIFO {
		if attrs == nil || attrs.GroupID == "" {
			return "", ErrMissingGroup
		}
		if attrs.DeduplicationID == "" {
			return "", ErrMissingDeduplication
		}
		now := time.Now()
		if prev, seen := q.dedup[attrs.DeduplicationID]; seen && now.Sub(prev.at) < q.opts.DedupWindow {
			q.stats.Sends++
			return prev.messageID, nil
		}
		q.dedup[attrs.DeduplicationID] = dedupEntry{messageID: msg.id, at: now}
		msg.group = attrs.GroupID
		msg.dedup = attrs.DeduplicationID
	}

	q.messages = append(q.messages, msg)
	q.stats.Sends++
	return msg.id, nil
}

// Receive returns visible messages, waiting up to wait for at least one to appear
func (b *Broker) Receive(ctx context.Context, queueURL string, maxMessages int, wait time.Duration) ([]models.Envelope, error) {
	deadline := time.Now().Add(wait)
	first := true
	for {
		envelopes, err := b.collect(queueURL, maxMessages, first)
		if err != nil || len(envelopes) > 0 {
			return envelopes, err
		}
		first = false

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return envelopes, nil
		}

		timer := time.NewTimer(min(remaining, pollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Broker) collect(queueURL string, maxMessages int, count bool) ([]models.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queueURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", queueURL, ErrUnknownQueue)
	}
	if count {
		q.stats.Receives++
		if len(q.failReceive) > 0 {
			err := q.failReceive[0]
			q.failReceive = q.failReceive[1:]
			return nil, err
		}
	}

	now := time.Now()
	b.redrive(q, now)

	// A group with a message in flight is blocked for the whole batch.
	blocked := make(map[string]struct{})
	if q.opts.FIFO {
		for _, msg := range q.messages {
			if now.Before(msg.visibleAt) {
				blocked[msg.group] = struct{}{}
			}
		}
	}

	envelopes := make([]models.Envelope, 0, maxMessages)
	for _, msg := range q.messages {
		if len(envelopes) == maxMessages {
			break
		}
		if now.Before(msg.visibleAt) {
			continue
		}
		if _, ok := blocked[msg.group]; ok {
			continue
		}

		msg.receiveCount++
		msg.receipt = uuid.NewString()
		msg.visibleAt = now.Add(q.opts.VisibilityTimeout)
		envelopes = append(
			envelopes, models.Envelope{
				MessageID:       msg.id,
				ReceiptHandle:   msg.receipt,
				Body:            msg.body,
				GroupID:         msg.group,
				DeduplicationID: msg.dedup,
				ReceiveCount:    msg.receiveCount,
			},
		)
	}
	q.stats.Delivered += len(envelopes)
	return envelopes, nil
}

// redrive moves visible messages that reached the receive limit to the dead-letter queue
func (b *Broker) redrive(q *queue, now time.Time) {
	if q.opts.DeadLetterURL == "" || q.opts.MaxReceiveCount <= 0 {
		return
	}
	dlq, ok := b.queues[q.opts.DeadLetterURL]
	if !ok {
		return
	}

	kept := q.messages[:0]
	for _, msg := range q.messages {
		if !now.Before(msg.visibleAt) && msg.receiveCount >= q.opts.MaxReceiveCount {
			dlq.messages = append(
				dlq.messages, &message{id: msg.id, body: msg.body, group: msg.group, dedup: msg.dedup},
			)
			continue
		}
		kept = append(kept, msg)
	}
	q.messages = kept
}

// Delete removes the message currently received with receiptHandle
func (b *Broker) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queueURL]
	if !ok {
		return fmt.Errorf("%s: %w", queueURL, ErrUnknownQueue)
	}
	if len(q.failDelete) > 0 {
		err := q.failDelete[0]
		q.failDelete = q.failDelete[1:]
		return err
	}

	for i, msg := range q.messages {
		if msg.receipt != "" && msg.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			q.stats.Deletes++
			return nil
		}
	}
	return ErrInvalidReceiptHandle
}

// Len returns the number of stored messages, in flight ones included
func (b *Broker) Len(queueURL string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[queueURL]; ok {
		return len(q.messages)
	}
	return 0
}

// Messages returns a snapshot of the stored messages in queue order
func (b *Broker) Messages(queueURL string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queueURL]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(q.messages))
	for _, msg := range q.messages {
		out = append(out, Message{ID: msg.id, Body: msg.body, GroupID: msg.group, ReceiveCount: msg.receiveCount})
	}
	return out
}

func (b *Broker) Stats(queueURL string) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[queueURL]; ok {
		return q.stats
	}
	return Stats{}
}
