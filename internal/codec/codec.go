// Package codec implements the JSON wire format shared by the publisher and the consumers
package codec

import (
	"fmt"

	json "github.com/goccy/go-json"

	"delivery/internal/models"
)

// A DecodeError means a message body could not be turned into a valid OrderEvent
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed order payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// A JSON codec is stateless and safe for concurrent use
type JSON struct{}

// EncodeOrder serializes an order event into a message body
func (JSON) EncodeOrder(event *models.OrderEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to encode order %s: %w", event.OrderID, err)
	}
	return string(data), nil
}

// DecodeOrder parses and validates a message body
func (JSON) DecodeOrder(body string) (*models.OrderEvent, error) {
	var event models.OrderEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := event.Validate(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &event, nil
}

// EncodeDelivery serializes a delivery event
func (JSON) EncodeDelivery(event *models.DeliveryEvent) ([]byte, error) {
	return json.Marshal(event)
}
