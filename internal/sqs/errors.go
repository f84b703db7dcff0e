package sqs

import (
	"errors"
	"fmt"

	"delivery/internal/models"
)

var (
	ErrQueueNotConfigured = errors.New("queue url is not configured")
	ErrUnknownQueue       = errors.New("unknown queue type")
	ErrIntentionalFailure = errors.New("intentional processing failure")
	ErrAlreadyRunning     = errors.New("worker is already running")
	ErrStopTimeout        = errors.New("worker did not stop in time and was cancelled")
	ErrNoReprocessor      = errors.New("no reprocessor is set")
)

// A ConfigurationError is returned when a queue cannot be used because of missing configuration.
// It is never retried
type ConfigurationError struct {
	Queue models.QueueType
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Queue, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// A PublishError means the transport did not accept an order event
type PublishError struct {
	Queue   models.QueueType
	OrderID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish order %s to %s queue: %v", e.OrderID, e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// A ProcessingError leaves the message on the queue for redelivery
type ProcessingError struct {
	Queue   models.QueueType
	OrderID string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to process order %s from %s queue: %v", e.OrderID, e.Queue, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// A PollError is a failed receive. The worker pauses and polls again
type PollError struct {
	Queue string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("failed to poll %s queue: %v", e.Queue, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
