// Package cache implements a manager connector of cache and database
package cache

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"delivery/internal/interfaces"
	"delivery/internal/models"
)

// A Manager is a thread-safe connector of cache and database to work with stored deliveries.
// Without a repository it keeps deliveries in the cache only.
type Manager struct {
	cache  interfaces.Cache[string, *models.DeliveryEvent]
	repo   interfaces.DeliveryRepository
	logger *zerolog.Logger
	mu     sync.Mutex
}

// NewManager creates a new manager with specified cache, repo and logger
func NewManager(
	cache interfaces.Cache[string, *models.DeliveryEvent], repo interfaces.DeliveryRepository,
	logger *zerolog.Logger,
) *Manager {
	if logger == nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		return &Manager{cache: cache, repo: repo, logger: &logger}
	}
	return &Manager{cache: cache, repo: repo, logger: logger}
}

// WarmCache adds at most cache.capacity recent deliveries to the cache
func (c *Manager) WarmCache(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deliveries, err := c.repo.GetNDeliveries(ctx, c.cache.Capacity())
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load deliveries for cache warm-up")
		return err
	}
	// newest first, so the newest is set last and ends up most recently used
	for i := len(deliveries) - 1; i >= 0; i-- {
		c.cache.Set(deliveries[i].OrderID, &deliveries[i])
	}

	return nil
}

// Save stores the delivery unless its order already has one, and returns the stored delivery
func (c *Manager) Save(ctx context.Context, delivery *models.DeliveryEvent) (*models.DeliveryEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.cache.Get(delivery.OrderID); ok {
		return existing, nil
	}

	stored := delivery
	if c.repo != nil {
		var err error
		stored, err = c.repo.SaveDelivery(ctx, delivery)
		if err != nil {
			c.logger.Error().Err(err).Str("order_id", delivery.OrderID).Msg("failed to save delivery")
			return nil, err
		}
	}
	c.cache.Set(stored.OrderID, stored)
	return stored, nil
}

// Get returns the delivery of an order from cache, if it's not there - from database.
// A nil delivery with nil error means the order has not been processed yet.
func (c *Manager) Get(ctx context.Context, orderID string) (*models.DeliveryEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delivery, ok := c.cache.Get(orderID)
	if ok {
		return delivery, nil
	}
	if c.repo == nil {
		return nil, nil
	}

	delivery, err := c.repo.GetDelivery(ctx, orderID)
	if err != nil {
		c.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to load delivery")
		return nil, err
	}
	if delivery != nil {
		c.cache.Set(orderID, delivery)
	}
	return delivery, nil
}

// DeleteCache removes a delivery from the cache only
func (c *Manager) DeleteCache(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cache.Delete(orderID); err != nil {
		c.logger.Debug().Err(err).Str("order_id", orderID).Msg("delivery was not cached")
	}
}

// SizeCache returns number of elements in cache
func (c *Manager) SizeCache() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Size()
}
