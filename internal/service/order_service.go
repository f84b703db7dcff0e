// Package service implements the business logic of the order and delivery services
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"delivery/internal/interfaces"
	"delivery/internal/models"
)

// A CreateOrderRequest is what a client sends to place an order
type CreateOrderRequest struct {
	CustomerID string             `json:"customerId"`
	Items      []models.OrderItem `json:"items"`
}

// An OrderService places orders by publishing them to a queue
type OrderService struct {
	publisher interfaces.OrderPublisher
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service with the provided publisher and logger
func NewOrderService(publisher interfaces.OrderPublisher, logger *zerolog.Logger) *OrderService {
	return &OrderService{publisher: publisher, logger: logger, now: time.Now}
}

// CreateOrder builds an order event from req and publishes it to queue.
// It returns the event and the message id assigned by the queue.
func (s *OrderService) CreateOrder(
	ctx context.Context, req CreateOrderRequest, queue models.QueueType,
) (*models.OrderEvent, string, error) {
	start := time.Now()

	event := &models.OrderEvent{
		OrderID:     uuid.NewString(),
		CustomerID:  req.CustomerID,
		Items:       req.Items,
		TotalAmount: models.CalculateTotal(req.Items),
		Timestamp:   s.now().UTC(),
	}

	if err := event.Validate(); err != nil {
		s.logger.Error().
			Err(err).
			Str("customer_id", req.CustomerID).
			Msg("CreateOrder: order validation failed")
		return nil, "", fmt.Errorf("order validation failed: %w", err)
	}

	messageID, err := s.publisher.Publish(ctx, event, queue)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", event.OrderID).
			Str("queue", string(queue)).
			Dur("duration", time.Since(start)).
			Msg("CreateOrder: failed to publish order")
		return nil, "", err
	}

	s.logger.Info().
		Str("order_id", event.OrderID).
		Str("customer_id", event.CustomerID).
		Str("queue", string(queue)).
		Str("message_id", messageID).
		Dur("duration", time.Since(start)).
		Msg("order created")

	return event, messageID, nil
}
