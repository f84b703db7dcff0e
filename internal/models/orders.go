// Package models implements the events exchanged between the order and delivery services
package models

import (
	"fmt"
	"strings"
	"time"
)

// A QueueType selects which queue an order travels through
type QueueType string

const (
	QueueStandard QueueType = "STANDARD"
	QueueFIFO     QueueType = "FIFO"
)

// ParseQueueType converts a user supplied queue name into a QueueType
func ParseQueueType(s string) (QueueType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(QueueStandard):
		return QueueStandard, nil
	case string(QueueFIFO):
		return QueueFIFO, nil
	}
	return "", fmt.Errorf("unknown queue type %q", s)
}

// An OrderItem is one line of an order
type OrderItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// An OrderEvent is published once per placed order and never changes afterwards
type OrderEvent struct {
	OrderID     string      `json:"orderId"`
	CustomerID  string      `json:"customerId"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CalculateTotal returns the sum of quantity*price over the items
func CalculateTotal(items []OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.Price
	}
	return total
}

// A ValidationError is a custom error type for data validation
type ValidationError struct {
	Field   string
	Struct  string
	Message string
}

// Error is an interface implementation for errors
func (e ValidationError) Error() string {
	return fmt.Sprintf("Validation error in field %s.%s: %s", e.Struct, e.Field, e.Message)
}

// NewOrderValidationError is a validation error in the OrderEvent
func NewOrderValidationError(field, message string) ValidationError {
	return ValidationError{field, "order", message}
}

// NewItemValidationError is a validation error in the OrderItem
func NewItemValidationError(field, message string) ValidationError {
	return ValidationError{field, "item", message}
}

// Validate checks if the OrderEvent carries everything a consumer needs.
// TotalAmount is computed by the producer and is not checked here.
func (o *OrderEvent) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" {
		return NewOrderValidationError("orderId", "is required")
	}
	if strings.TrimSpace(o.CustomerID) == "" {
		return NewOrderValidationError("customerId", "is required")
	}
	if len(o.Items) == 0 {
		return NewOrderValidationError("items", "at least one item has to be present")
	}
	for i, item := range o.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks if the OrderItem data is correct
func (i *OrderItem) Validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return NewItemValidationError("productId", "is required")
	}
	if i.Quantity <= 0 {
		return NewItemValidationError("quantity", "must be positive")
	}
	if i.Price < 0 {
		return NewItemValidationError("price", "cannot be negative")
	}
	return nil
}

// HasProductNamed reports whether any item name contains marker, ignoring case
func (o *OrderEvent) HasProductNamed(marker string) bool {
	if marker == "" {
		return false
	}
	marker = strings.ToLower(marker)
	for _, item := range o.Items {
		if strings.Contains(strings.ToLower(item.ProductName), marker) {
			return true
		}
	}
	return false
}

// ProductNames lists the item names in order
func (o *OrderEvent) ProductNames() []string {
	names := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		names = append(names, item.ProductName)
	}
	return names
}
