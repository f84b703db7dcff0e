package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"delivery/internal/config"
	"delivery/internal/metrics"
	"delivery/internal/models"
	"delivery/internal/service"
	"delivery/internal/sqs"
)

// A mockOrders is a not thread-safe mock implementation of OrderCreator
type mockOrders struct {
	req   service.CreateOrderRequest
	queue models.QueueType
	err   error
}

func (m *mockOrders) CreateOrder(
	ctx context.Context, req service.CreateOrderRequest, queue models.QueueType,
) (*models.OrderEvent, string, error) {
	m.req = req
	m.queue = queue
	if m.err != nil {
		return nil, "", m.err
	}
	return &models.OrderEvent{
		OrderID:     "o1",
		CustomerID:  req.CustomerID,
		Items:       req.Items,
		TotalAmount: models.CalculateTotal(req.Items),
		Timestamp:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}, "msg-1", nil
}

type mockDeliveries struct {
	deliveries map[string]*models.DeliveryEvent
	err        error
}

func (m *mockDeliveries) GetDelivery(ctx context.Context, orderID string) (*models.DeliveryEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.deliveries[orderID], nil
}

type fixedState sqs.State

func (s fixedState) State() sqs.State {
	return sqs.State(s)
}

type mockFailures struct {
	counter *sqs.AttemptCounter
}

func (m mockFailures) Attempts() *sqs.AttemptCounter {
	return m.counter
}

type mockMonitor struct {
	queue  models.QueueType
	max    int
	result sqs.ReprocessResult
	err    error
}

func (m *mockMonitor) States() map[string]sqs.State {
	return map[string]sqs.State{"STANDARD_DLQ": sqs.StateRunning}
}

func (m *mockMonitor) LastObservations() []sqs.Observation {
	return []sqs.Observation{{Queue: "STANDARD_DLQ", Messages: 2}}
}

func (m *mockMonitor) Reprocess(ctx context.Context, queue models.QueueType, max int) (sqs.ReprocessResult, error) {
	m.queue = queue
	m.max = max
	return m.result, m.err
}

func testConfig() *config.Config {
	return &config.Config{Server: config.ServerConfig{Port: 8080}}
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("error: failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestServer_CreateOrder(t *testing.T) {
	orders := &mockOrders{}
	h := NewOrderServer(testConfig(), orders, testLogger()).Handler()

	body := `{"customerId":"c1","items":[{"productId":"p1","productName":"widget","quantity":2,"price":9.99}]}`
	rec := serve(t, h, http.MethodPost, "/api/orders?queueType=fifo", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[CreateOrderResponse](t, rec)
	if resp.OrderID != "o1" || resp.MessageID != "msg-1" || resp.TotalAmount != 19.98 {
		t.Errorf("error: unexpected response %+v", resp)
	}
	if orders.queue != models.QueueFIFO || orders.req.CustomerID != "c1" || len(orders.req.Items) != 1 {
		t.Errorf("error: unexpected request %+v to %s", orders.req, orders.queue)
	}
}

func TestServer_CreateOrderDefaultsToStandard(t *testing.T) {
	orders := &mockOrders{}
	h := NewOrderServer(testConfig(), orders, testLogger()).Handler()

	rec := serve(t, h, http.MethodPost, "/api/orders", `{"customerId":"c1","items":[]}`)
	if rec.Code != http.StatusOK || orders.queue != models.QueueStandard {
		t.Errorf("error: expected standard queue, got %d, %s", rec.Code, orders.queue)
	}
}

func TestServer_CreateOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		err    error
		status int
	}{
		{"unknown queue", "/api/orders?queueType=topic", `{}`, nil, http.StatusBadRequest},
		{"malformed body", "/api/orders", `{"customerId":`, nil, http.StatusBadRequest},
		{
			"validation", "/api/orders", `{}`,
			models.NewOrderValidationError("items", "at least one item has to be present"),
			http.StatusBadRequest,
		},
		{
			"queue not configured", "/api/orders?queueType=fifo", `{}`,
			&sqs.ConfigurationError{Queue: models.QueueFIFO, Err: sqs.ErrQueueNotConfigured},
			http.StatusServiceUnavailable,
		},
		{
			"publish failed", "/api/orders", `{}`,
			&sqs.PublishError{Queue: models.QueueStandard, OrderID: "o1", Err: errors.New("throttled")},
			http.StatusBadGateway,
		},
		{"unexpected", "/api/orders", `{}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderServer(testConfig(), &mockOrders{err: tt.err}, testLogger()).Handler()
			rec := serve(t, h, http.MethodPost, tt.target, tt.body)

			if rec.Code != tt.status {
				t.Errorf("error: expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if resp := decode[ErrorResponse](t, rec); resp.Error == "" {
				t.Errorf("error: expected an error message")
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	orderServer := NewOrderServer(testConfig(), &mockOrders{}, testLogger()).Handler()
	deliveryServer := NewDeliveryServer(testConfig(), DeliveryDeps{}, testLogger()).Handler()

	for _, tc := range []struct {
		h       http.Handler
		path    string
		service string
	}{
		{orderServer, "/health", "order-service"},
		{orderServer, "/api/orders/health", "order-service"},
		{deliveryServer, "/health", "delivery-service"},
		{deliveryServer, "/api/delivery/health", "delivery-service"},
	} {
		rec := serve(t, tc.h, http.MethodGet, tc.path, "")
		resp := decode[HealthResponse](t, rec)
		if rec.Code != http.StatusOK || resp.Status != "UP" || resp.Service != tc.service {
			t.Errorf("error: %s: unexpected health %d %+v", tc.path, rec.Code, resp)
		}
	}
}

func TestServer_GetDelivery(t *testing.T) {
	deliveries := &mockDeliveries{deliveries: map[string]*models.DeliveryEvent{
		"o1": {DeliveryID: "d1", OrderID: "o1", Address: "addr", Status: models.DeliveryPending},
	}}
	h := NewDeliveryServer(testConfig(), DeliveryDeps{Deliveries: deliveries}, testLogger()).Handler()

	rec := serve(t, h, http.MethodGet, "/api/delivery/o1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d", rec.Code)
	}
	if d := decode[models.DeliveryEvent](t, rec); d.DeliveryID != "d1" || d.Status != models.DeliveryPending {
		t.Errorf("error: unexpected delivery %+v", d)
	}

	if rec := serve(t, h, http.MethodGet, "/api/delivery/o2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("error: expected 404 for unknown order, got %d", rec.Code)
	}

	deliveries.err = errors.New("db is down")
	if rec := serve(t, h, http.MethodGet, "/api/delivery/o1", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("error: expected 500 on repository error, got %d", rec.Code)
	}
}

func TestServer_Status(t *testing.T) {
	counter := sqs.NewAttemptCounter()
	counter.Increment("o9")
	counter.Increment("o9")

	deps := DeliveryDeps{
		Standard: fixedState(sqs.StateRunning),
		FIFO:     fixedState(sqs.StateStopped),
		Failures: mockFailures{counter: counter},
		Monitor:  &mockMonitor{},
	}
	h := NewDeliveryServer(testConfig(), deps, testLogger()).Handler()

	rec := serve(t, h, http.MethodGet, "/api/delivery/status", "")
	resp := decode[StatusResponse](t, rec)

	if resp.Workers["STANDARD"] != "RUNNING" || resp.Workers["FIFO"] != "STOPPED" || resp.Workers["STANDARD_DLQ"] != "RUNNING" {
		t.Errorf("error: unexpected workers %v", resp.Workers)
	}
	if resp.FailureAttempts["o9"] != 2 {
		t.Errorf("error: expected 2 failure attempts, got %v", resp.FailureAttempts)
	}
	if len(resp.DeadLetters) != 1 || resp.DeadLetters[0].Messages != 2 {
		t.Errorf("error: unexpected dead letters %+v", resp.DeadLetters)
	}
}

func TestServer_Reprocess(t *testing.T) {
	monitor := &mockMonitor{result: sqs.ReprocessResult{Received: 3, Reprocessed: 2, Failed: 1}}
	h := NewDeliveryServer(testConfig(), DeliveryDeps{Monitor: monitor}, testLogger()).Handler()

	rec := serve(t, h, http.MethodPost, "/api/delivery/dlq/fifo/reprocess?max=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[sqs.ReprocessResult](t, rec); resp != monitor.result {
		t.Errorf("error: unexpected result %+v", resp)
	}
	if monitor.queue != models.QueueFIFO || monitor.max != 5 {
		t.Errorf("error: expected FIFO with max 5, got %s %d", monitor.queue, monitor.max)
	}

	if rec := serve(t, h, http.MethodPost, "/api/delivery/dlq/fifo/reprocess?max=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("error: expected 400 for negative max, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodPost, "/api/delivery/dlq/topic/reprocess", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("error: expected 400 for unknown queue, got %d", rec.Code)
	}

	monitor.err = sqs.ErrNoReprocessor
	if rec := serve(t, h, http.MethodPost, "/api/delivery/dlq/standard/reprocess", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("error: expected 503 without reprocessor, got %d", rec.Code)
	}

	monitor.err = &sqs.PollError{Queue: "FIFO_DLQ", Err: errors.New("throttled")}
	if rec := serve(t, h, http.MethodPost, "/api/delivery/dlq/fifo/reprocess", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("error: expected 502 on poll error, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.IncPublished(string(models.QueueStandard), metrics.ResultSuccess)

	h := NewDeliveryServer(testConfig(), DeliveryDeps{Metrics: metrics.Handler(reg)}, testLogger()).Handler()
	rec := serve(t, h, http.MethodGet, "/metrics", "")

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "delivery_published_total") {
		t.Errorf("error: expected published counter in metrics, got %d", rec.Code)
	}

	h = NewDeliveryServer(testConfig(), DeliveryDeps{}, testLogger()).Handler()
	if rec := serve(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("error: expected no metrics route without a handler, got %d", rec.Code)
	}
}

func TestServer_RecoversFromPanic(t *testing.T) {
	s := NewOrderServer(testConfig(), &mockOrders{}, testLogger())
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	if rec := serve(t, h, http.MethodGet, "/", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("error: expected 500 after panic, got %d", rec.Code)
	}
}
