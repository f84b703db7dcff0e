package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"delivery/internal/models"
)

func TestJSON_EncodeOrderFieldNames(t *testing.T) {
	event := &models.OrderEvent{
		OrderID:     "o1",
		CustomerID:  "c1",
		Items:       []models.OrderItem{{ProductID: "p1", ProductName: "widget", Quantity: 2, Price: 9.99}},
		TotalAmount: 19.98,
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := JSON{}.EncodeOrder(event)
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	for _, field := range []string{
		`"orderId":"o1"`, `"customerId":"c1"`, `"productId":"p1"`, `"productName":"widget"`,
		`"quantity":2`, `"price":9.99`, `"totalAmount":19.98`, `"timestamp":"2024-05-01T12:00:00Z"`,
	} {
		if !strings.Contains(body, field) {
			t.Errorf("error: expected %s in %s", field, body)
		}
	}

	decoded, err := JSON{}.DecodeOrder(body)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if decoded.OrderID != "o1" || decoded.Items[0].ProductName != "widget" || !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("error: decoded event differs: %+v", decoded)
	}
}

func TestJSON_DecodeOrderMalformed(t *testing.T) {
	for _, body := range []string{
		"not json",
		`{"orderId":"o1","customerId":"c1","items":[]}`,
		`{"customerId":"c1","items":[{"productId":"p","quantity":1,"price":1}]}`,
	} {
		_, err := JSON{}.DecodeOrder(body)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("error: expected DecodeError for %q, got %v", body, err)
		}
	}
}

func TestJSON_EncodeDelivery(t *testing.T) {
	data, err := JSON{}.EncodeDelivery(
		&models.DeliveryEvent{DeliveryID: "d1", OrderID: "o1", Address: "addr", Status: models.DeliveryPending},
	)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !strings.Contains(string(data), `"deliveryId":"d1"`) || !strings.Contains(string(data), `"status":"PENDING"`) {
		t.Errorf("error: unexpected delivery payload %s", data)
	}
}
