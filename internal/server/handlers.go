package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"delivery/internal/interfaces"
	"delivery/internal/models"
	"delivery/internal/service"
	"delivery/internal/sqs"
)

// An OrderCreator places orders
type OrderCreator interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest, queue models.QueueType) (*models.OrderEvent, string, error)
}

// A ConsumerStatus reports the lifecycle state of a consumer
type ConsumerStatus interface {
	State() sqs.State
}

// A FailureCounter reports the intentional failure attempts of a consumer
type FailureCounter interface {
	Attempts() *sqs.AttemptCounter
}

// A DeadLetterMonitor is what the delivery API needs from the dead-letter monitor
type DeadLetterMonitor interface {
	States() map[string]sqs.State
	LastObservations() []sqs.Observation
	Reprocess(ctx context.Context, queue models.QueueType, max int) (sqs.ReprocessResult, error)
}

// DeliveryDeps are the components exposed by the delivery API. Nil members are reported as absent
type DeliveryDeps struct {
	Deliveries interfaces.DeliveryReader
	Standard   ConsumerStatus
	FIFO       ConsumerStatus
	Failures   FailureCounter
	Monitor    DeadLetterMonitor
	Metrics    http.Handler
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

// CreateOrderResponse is the published order with the id the queue assigned to it
type CreateOrderResponse struct {
	models.OrderEvent
	MessageID string `json:"messageId"`
}

// StatusResponse describes the workers of the delivery service
type StatusResponse struct {
	Service         string            `json:"service"`
	Status          string            `json:"status"`
	Workers         map[string]string `json:"workers"`
	DeadLetters     []sqs.Observation `json:"deadLetters"`
	FailureAttempts map[string]int    `json:"failureAttempts"`
}

// handleCreateOrder handles POST /api/orders?queueType= requests
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	queue, err := models.ParseQueueType(r.URL.Query().Get("queueType"))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid queue type", err.Error())
		return
	}

	var req service.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	event, messageID, err := s.orders.CreateOrder(r.Context(), req, queue)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("customer_id", req.CustomerID).
			Str("queue", string(queue)).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("Failed to create order")

		var (
			validationErr models.ValidationError
			cfgErr        *sqs.ConfigurationError
			publishErr    *sqs.PublishError
		)
		switch {
		case errors.As(err, &validationErr):
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order", err.Error())
		case errors.As(err, &cfgErr):
			s.writeErrorResponse(w, http.StatusServiceUnavailable, "Queue is not available", err.Error())
		case errors.As(err, &publishErr):
			s.writeErrorResponse(w, http.StatusBadGateway, "Failed to publish order", err.Error())
		default:
			s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", "")
		}
		return
	}

	s.writeJSONResponse(w, http.StatusOK, CreateOrderResponse{OrderEvent: *event, MessageID: messageID})
}

// handleGetDelivery handles GET /api/delivery/{order_id} requests
func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.PathValue("order_id"))
	if orderID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Order ID is required", "")
		return
	}
	if s.delivery.Deliveries == nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "Deliveries are not available", "")
		return
	}

	delivery, err := s.delivery.Deliveries.GetDelivery(r.Context(), orderID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", orderID).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to get delivery")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if delivery == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "Delivery not found", orderID)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, delivery)
}

// handleStatus handles GET /api/delivery/status requests
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service:         s.name,
		Status:          "running",
		Workers:         make(map[string]string),
		DeadLetters:     []sqs.Observation{},
		FailureAttempts: map[string]int{},
	}

	if s.delivery.Standard != nil {
		resp.Workers[string(models.QueueStandard)] = s.delivery.Standard.State().String()
	}
	if s.delivery.FIFO != nil {
		resp.Workers[string(models.QueueFIFO)] = s.delivery.FIFO.State().String()
	}
	if s.delivery.Failures != nil {
		resp.FailureAttempts = s.delivery.Failures.Attempts().Snapshot()
	}
	if s.delivery.Monitor != nil {
		for name, state := range s.delivery.Monitor.States() {
			resp.Workers[name] = state.String()
		}
		if observations := s.delivery.Monitor.LastObservations(); observations != nil {
			resp.DeadLetters = observations
		}
	}

	s.writeJSONResponse(w, http.StatusOK, resp)
}

// handleReprocess handles POST /api/delivery/dlq/{queue}/reprocess?max=N requests
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	queue, err := models.ParseQueueType(r.PathValue("queue"))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid queue type", err.Error())
		return
	}

	var max int
	if raw := r.URL.Query().Get("max"); raw != "" {
		max, err = strconv.Atoi(raw)
		if err != nil || max < 0 {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid max", raw)
			return
		}
	}

	if s.delivery.Monitor == nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "Dead-letter monitor is not available", "")
		return
	}

	result, err := s.delivery.Monitor.Reprocess(r.Context(), queue, max)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("queue", string(queue)).
			Msg("Failed to reprocess dead-letter queue")

		var cfgErr *sqs.ConfigurationError
		switch {
		case errors.As(err, &cfgErr), errors.Is(err, sqs.ErrNoReprocessor):
			s.writeErrorResponse(w, http.StatusServiceUnavailable, "Reprocessing is not available", err.Error())
		default:
			s.writeErrorResponse(w, http.StatusBadGateway, "Failed to reprocess", err.Error())
		}
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// handleHealth handles GET /health requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "UP",
		Service: s.name,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response in JSON format
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	errorResp := ErrorResponse{
		Error:   message,
		Message: details,
	}

	s.writeJSONResponse(w, statusCode, errorResp)
}
