package interfaces

import (
	"context"
	"delivery/internal/models"
)

// DeliveryRepository stores at most one delivery per order.
// SaveDelivery returns the stored row, which is the earlier one if the order already had a delivery.
type DeliveryRepository interface {
	SaveDelivery(ctx context.Context, delivery *models.DeliveryEvent) (*models.DeliveryEvent, error)
	GetDelivery(ctx context.Context, orderID string) (*models.DeliveryEvent, error)
	GetNDeliveries(ctx context.Context, n int) ([]models.DeliveryEvent, error)
}
