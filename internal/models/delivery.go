package models

import "time"

// A DeliveryStatus is the state of a delivery
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// A DeliveryEvent is created by the delivery processor for an order it accepted
type DeliveryEvent struct {
	DeliveryID string         `json:"deliveryId" db:"delivery_id"`
	OrderID    string         `json:"orderId" db:"order_id"`
	Address    string         `json:"address" db:"address"`
	Status     DeliveryStatus `json:"status" db:"status"`
	Timestamp  time.Time      `json:"timestamp" db:"created_at"`
}
