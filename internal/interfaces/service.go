package interfaces

import (
	"context"
	"delivery/internal/models"
)

// DeliveryProcessor must tolerate being invoked more than once for the same order
type DeliveryProcessor interface {
	ProcessOrder(ctx context.Context, event *models.OrderEvent, queue models.QueueType) error
}

type DeliveryReader interface {
	GetDelivery(ctx context.Context, orderID string) (*models.DeliveryEvent, error)
}
