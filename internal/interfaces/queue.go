package interfaces

import (
	"context"
	"delivery/internal/models"
	"time"
)

// Transport is the contract of the external queue service
type Transport interface {
	Send(ctx context.Context, queueURL, body string, attrs *models.SendAttributes) (string, error)
	Receive(ctx context.Context, queueURL string, maxMessages int, wait time.Duration) ([]models.Envelope, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
}

type OrderPublisher interface {
	Publish(ctx context.Context, event *models.OrderEvent, target models.QueueType) (string, error)
}

type DeliveryNotifier interface {
	Notify(ctx context.Context, delivery *models.DeliveryEvent) error
}
