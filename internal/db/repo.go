package db

import (
	"context"
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"delivery/internal/models"
)

// A DeliveryRepo is a repository pattern implementation for deliveries.
// The deliveries table has a unique order_id, see deployments/schema.sql
type DeliveryRepo struct {
	db *DB
}

// NewDeliveryRepo creates a new instance of DeliveryRepo on top of an opened DB
func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{db}
}

// SaveDelivery inserts a delivery. If the order already has one, the existing row is returned instead
func (r *DeliveryRepo) SaveDelivery(ctx context.Context, delivery *models.DeliveryEvent) (*models.DeliveryEvent, error) {
	stored, err := r.db.WithTx(
		ctx, func(tx pgx.Tx) (any, error) {
			return r.upsertDelivery(ctx, tx, delivery)
		},
	)
	if err != nil {
		return nil, err
	}
	return stored.(*models.DeliveryEvent), nil
}

// upsertDelivery touches the conflicting row so that RETURNING yields it
func (r *DeliveryRepo) upsertDelivery(
	ctx context.Context, q Queryable, delivery *models.DeliveryEvent,
) (*models.DeliveryEvent, error) {
	query := `
		INSERT INTO deliveries (delivery_id, order_id, address, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE SET order_id = EXCLUDED.order_id
		RETURNING delivery_id, order_id, address, status, created_at
	`

	var stored models.DeliveryEvent
	err := pgxscan.Get(
		ctx, q, &stored, query, delivery.DeliveryID, delivery.OrderID, delivery.Address, delivery.Status,
		delivery.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetDelivery returns the delivery of an order, or nil if there is none
func (r *DeliveryRepo) GetDelivery(ctx context.Context, orderID string) (*models.DeliveryEvent, error) {
	query := `
		SELECT delivery_id, order_id, address, status, created_at
		FROM deliveries
		WHERE order_id = $1
	`

	var delivery models.DeliveryEvent
	err := pgxscan.Get(ctx, r.db.pool, &delivery, query, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

// GetNDeliveries returns the n most recent deliveries
func (r *DeliveryRepo) GetNDeliveries(ctx context.Context, n int) ([]models.DeliveryEvent, error) {
	query := `
		SELECT delivery_id, order_id, address, status, created_at
		FROM deliveries
		ORDER BY created_at DESC
		LIMIT $1
	`

	var deliveries []models.DeliveryEvent
	if err := pgxscan.Select(ctx, r.db.pool, &deliveries, query, n); err != nil {
		return []models.DeliveryEvent{}, err
	}
	return deliveries, nil
}
