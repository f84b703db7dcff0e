// Package metrics exposes prometheus counters for the queue pipeline
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "delivery"

// Processing results used as the result label
const (
	ResultSuccess   = "success"
	ResultDecode    = "decode_error"
	ResultFailed    = "processing_error"
	ResultAckFailed = "ack_error"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
	ResultError     = "error"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing
type Metrics struct {
	Published          *prometheus.CounterVec
	Received           *prometheus.CounterVec
	Processed          *prometheus.CounterVec
	PollErrors         *prometheus.CounterVec
	DeadLetterObserved *prometheus.CounterVec
	ProcessingSeconds  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Order events submitted to a queue.",
		}, []string{"queue", "result"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_total",
			Help:      "Messages received from a primary queue.",
		}, []string{"queue"}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_total",
			Help:      "Messages handled by a consumer, by outcome.",
		}, []string{"queue", "result"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed receive calls.",
		}, []string{"queue"}),
		DeadLetterObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_observed_total",
			Help:      "Messages seen on a dead-letter queue. The same message is counted on every poll that returns it.",
		}, []string{"queue"}),
		ProcessingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent handling one message.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"queue"}),
	}

	reg.MustRegister(m.Published, m.Received, m.Processed, m.PollErrors, m.DeadLetterObserved, m.ProcessingSeconds)
	return m
}

func (m *Metrics) IncPublished(queue, result string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(queue, result).Inc()
}

func (m *Metrics) AddReceived(queue string, n int) {
	if m == nil {
		return
	}
	m.Received.WithLabelValues(queue).Add(float64(n))
}

func (m *Metrics) IncProcessed(queue, result string) {
	if m == nil {
		return
	}
	m.Processed.WithLabelValues(queue, result).Inc()
}

func (m *Metrics) IncPollErrors(queue string) {
	if m == nil {
		return
	}
	m.PollErrors.WithLabelValues(queue).Inc()
}

func (m *Metrics) AddDeadLetterObserved(queue string, n int) {
	if m == nil {
		return
	}
	m.DeadLetterObserved.WithLabelValues(queue).Add(float64(n))
}

func (m *Metrics) ObserveProcessing(queue string, seconds float64) {
	if m == nil {
		return
	}
	m.ProcessingSeconds.WithLabelValues(queue).Observe(seconds)
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
