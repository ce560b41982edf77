package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Типы отказов для FailureTotal
const (
	FailureDisplay   = "display"
	FailureDelivery  = "delivery"
	FailureMalformed = "malformed"
	FailureQuote     = "quote"
	FailureClaim     = "claim"
	FailurePanic     = "panic"
)

type Metrics struct {
	// Traffic: входящие события по виду (command, view, action) и имени
	EventsTotal *prometheus.CounterVec

	// Latency: время обработчика после ack
	HandlerDuration *prometheus.HistogramVec

	// Errors: классификация отказов
	FailureTotal *prometheus.CounterVec

	// Business: принятые решения (approved/rejected)
	DecisionsTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalbot_events_total",
			Help: "Total number of acknowledged inbound events.",
		}, []string{"kind", "name"}),

		HandlerDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvalbot_handler_duration_seconds",
			Help:    "Histogram of handler latencies after acknowledgement.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		FailureTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalbot_failures_total",
			Help: "Total number of handler failures by type.",
		}, []string{"type"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalbot_decisions_total",
			Help: "Total number of resolved approval decisions.",
		}, []string{"outcome"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "approvalbot_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
	}
}

// Failure инкрементирует счетчик отказов; безопасен для nil.
func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.FailureTotal.WithLabelValues(kind).Inc()
}
