package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the relay.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics. Components
// treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Transfer Metrics
	transfersCreatedTotal    *prometheus.CounterVec
	reconcileOutcomesTotal   *prometheus.CounterVec
	feeEstimateLamports      *prometheus.HistogramVec
	transferInstructionCount *prometheus.HistogramVec

	// Sweep Workflow Metrics
	sweepActivityDuration *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
	natsMessagesConsumed  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		// Transfer Metrics
		transfersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_transfers_created_total",
				Help: "Total number of transfer creation attempts by mint and outcome",
			},
			[]string{"mint_symbol", "status"},
		),
		reconcileOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_reconcile_outcomes_total",
				Help: "Total number of reconciled indexer notifications by outcome",
			},
			[]string{"outcome"},
		),
		feeEstimateLamports: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_fee_estimate_lamports",
				Help:    "Estimated network fee per transfer in lamports",
				Buckets: []float64{5000, 7500, 10000, 25000, 50000, 100000, 500000},
			},
			[]string{"mint_symbol"},
		),
		transferInstructionCount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_transfer_instruction_count",
				Help:    "Number of instructions composed per transfer",
				Buckets: []float64{3, 4, 5},
			},
			[]string{"mint_symbol"},
		),

		// Sweep Workflow Metrics
		sweepActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_sweep_activity_duration_seconds",
				Help:    "Duration of reconcile sweep activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
		natsMessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_consumed_total",
				Help: "Total number of NATS messages consumed by outcome",
			},
			[]string{"subject", "outcome"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call.
func (m *Metrics) RecordRPCCall(method, status string) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
}

// RecordRPCCallDuration records the duration of a Solana RPC call.
func (m *Metrics) RecordRPCCallDuration(method string, duration float64) {
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// Transfer metric helpers

// RecordTransferCreated records a transfer creation attempt.
func (m *Metrics) RecordTransferCreated(mintSymbol, status string) {
	m.transfersCreatedTotal.WithLabelValues(mintSymbol, status).Inc()
}

// RecordReconcileOutcome records the outcome of processing one indexer
// notification.
func (m *Metrics) RecordReconcileOutcome(outcome string) {
	m.reconcileOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordFeeEstimate records an advisory fee estimate.
func (m *Metrics) RecordFeeEstimate(mintSymbol string, lamports uint64) {
	m.feeEstimateLamports.WithLabelValues(mintSymbol).Observe(float64(lamports))
}

// RecordInstructionCount records the number of instructions composed for
// a transfer.
func (m *Metrics) RecordInstructionCount(mintSymbol string, count int) {
	m.transferInstructionCount.WithLabelValues(mintSymbol).Observe(float64(count))
}

// Sweep workflow metric helpers

// RecordSweepActivityDuration records a reconcile sweep activity execution.
func (m *Metrics) RecordSweepActivityDuration(activity string, duration float64) {
	m.sweepActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// RecordNATSConsume records a consumed NATS message.
func (m *Metrics) RecordNATSConsume(subject, outcome string) {
	m.natsMessagesConsumed.WithLabelValues(subject, outcome).Inc()
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
