package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"delivery/internal/cache"
	"delivery/internal/config"
	"delivery/internal/interfaces"
	"delivery/internal/models"
)

// A DeliveryService turns consumed orders into deliveries. It is safe to call more than once per order:
// an order that already has a delivery is accepted without creating another one.
type DeliveryService struct {
	cacheManager   *cache.Manager
	notifier       interfaces.DeliveryNotifier
	config         config.DeliveryConfig
	logger         *zerolog.Logger
	circuitBreaker *gobreaker.CircuitBreaker
}

// NewDeliveryService creates a delivery service. notifier may be nil
func NewDeliveryService(
	cacheManager *cache.Manager, notifier interfaces.DeliveryNotifier, cfg config.DeliveryConfig,
	cbCfg config.CircuitBreakerConfig, logger *zerolog.Logger,
) *DeliveryService {
	settings := gobreaker.Settings{
		Name:        "delivery-service",
		MaxRequests: uint32(cbCfg.HalfOpenMaxCalls),
		Interval:    cbCfg.Timeout,
		Timeout:     cbCfg.Timeout,
	}
	if cbCfg.MaxFailers > 0 {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cbCfg.MaxFailers)
		}
	}

	return &DeliveryService{
		cacheManager:   cacheManager,
		notifier:       notifier,
		config:         cfg,
		logger:         logger,
		circuitBreaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// ProcessOrder creates the delivery of an order after the configured processing time
func (s *DeliveryService) ProcessOrder(ctx context.Context, event *models.OrderEvent, queue models.QueueType) error {
	start := time.Now()

	if event == nil {
		err := errors.New("order event cannot be nil")
		s.logger.Error().Err(err).Msg("ProcessOrder: received nil order")
		return err
	}

	existing, err := s.GetDelivery(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.logger.Info().
			Str("queue", string(queue)).
			Str("order_id", event.OrderID).
			Str("delivery_id", existing.DeliveryID).
			Msg("order already has a delivery")
		return nil
	}

	s.logger.Info().
		Str("queue", string(queue)).
		Str("order_id", event.OrderID).
		Str("customer_id", event.CustomerID).
		Strs("products", event.ProductNames()).
		Float64("total_amount", event.TotalAmount).
		Msg("delivery processing started")

	if err := s.simulateProcessing(ctx); err != nil {
		return fmt.Errorf("delivery processing of order %s interrupted: %w", event.OrderID, err)
	}

	delivery := &models.DeliveryEvent{
		DeliveryID: uuid.NewString(),
		OrderID:    event.OrderID,
		Address:    s.config.DefaultAddress,
		Status:     models.DeliveryPending,
		Timestamp:  time.Now().UTC(),
	}

	result, err := s.circuitBreaker.Execute(
		func() (interface{}, error) {
			return s.cacheManager.Save(ctx, delivery)
		},
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("queue", string(queue)).
			Str("order_id", event.OrderID).
			Dur("duration", time.Since(start)).
			Msg("ProcessOrder: failed to save delivery")
		return fmt.Errorf("failed to save delivery: %w", err)
	}

	stored := result.(*models.DeliveryEvent)
	if stored.DeliveryID != delivery.DeliveryID {
		s.logger.Info().
			Str("order_id", event.OrderID).
			Str("delivery_id", stored.DeliveryID).
			Msg("delivery was created concurrently, keeping the stored one")
		return nil
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, stored); err != nil {
			s.logger.Warn().
				Err(err).
				Str("order_id", event.OrderID).
				Str("delivery_id", stored.DeliveryID).
				Msg("failed to publish delivery event")
		}
	}

	s.logger.Info().
		Str("queue", string(queue)).
		Str("order_id", event.OrderID).
		Str("delivery_id", stored.DeliveryID).
		Dur("duration", time.Since(start)).
		Msg("delivery processing finished")

	return nil
}

// GetDelivery returns the delivery of an order, or nil if the order has not been processed
func (s *DeliveryService) GetDelivery(ctx context.Context, orderID string) (*models.DeliveryEvent, error) {
	if strings.TrimSpace(orderID) == "" {
		err := errors.New("order id cannot be empty")
		s.logger.Error().Err(err).Msg("GetDelivery: empty order id provided")
		return nil, err
	}

	retrieveCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	result, err := s.circuitBreaker.Execute(
		func() (interface{}, error) {
			return s.cacheManager.Get(retrieveCtx, orderID)
		},
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", orderID).
			Msg("GetDelivery: failed to retrieve delivery")
		return nil, fmt.Errorf("failed to retrieve delivery: %w", err)
	}

	return result.(*models.DeliveryEvent), nil
}

// WarmCache loads recent deliveries from database into cache on startup
func (s *DeliveryService) WarmCache(ctx context.Context) error {
	start := time.Now()

	warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := s.circuitBreaker.Execute(
		func() (interface{}, error) {
			return nil, s.cacheManager.WarmCache(warmCtx)
		},
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("WarmCache: failed to warm cache")
		return fmt.Errorf("failed to warm cache: %w", err)
	}

	return nil
}

// simulateProcessing blocks for the configured processing time unless ctx is done first
func (s *DeliveryService) simulateProcessing(ctx context.Context) error {
	if s.config.ProcessingTime <= 0 {
		return nil
	}

	timer := time.NewTimer(s.config.ProcessingTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
