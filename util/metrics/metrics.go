package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequestsTotal counts gateway operations by replica, method and gRPC status code
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgegate_gateway_requests_total",
			Help: "Total number of requests handled by a gateway replica",
		},
		[]string{"replica", "method", "code"},
	)

	// GatewayRequestDuration tracks gateway-measured wall time per operation in seconds
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgegate_gateway_request_duration_seconds",
			Help:    "Gateway-measured wall time of requests in seconds, including kernel invocation",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"replica", "method"},
	)

	// KernelReportedDuration tracks the time the kernel reports for itself via time_ms=
	KernelReportedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgegate_kernel_reported_duration_seconds",
			Help:    "Kernel self-reported compute time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"replica", "mode"},
	)

	// GatewayBusyWorkers is the number of pool workers currently executing an operation
	GatewayBusyWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgegate_gateway_busy_workers",
			Help: "Number of gateway pool workers currently executing an operation",
		},
		[]string{"replica"},
	)

	// DispatchAttemptsTotal counts individual attempts by endpoint and outcome
	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgegate_dispatch_attempts_total",
			Help: "Total number of dispatch attempts by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// DispatchTotal counts logical requests by kind and final result
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgegate_dispatch_total",
			Help: "Total number of logical requests dispatched, by kind and result",
		},
		[]string{"kind", "result"},
	)

	// DispatchDuration tracks end-to-end latency of logical requests in seconds
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgegate_dispatch_duration_seconds",
			Help:    "End-to-end latency of logical requests across all attempts in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind", "result"},
	)

	// OutcomeRowsTotal counts rows appended by outcome recorders, labelled by sink
	OutcomeRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgegate_outcome_rows_total",
			Help: "Total number of outcome rows appended, by sink and status",
		},
		[]string{"sink", "status"},
	)
)

// RecordGatewayRequest records one finished gateway operation
func RecordGatewayRequest(replica, method, code string, durationSeconds float64) {
	GatewayRequestsTotal.WithLabelValues(replica, method, code).Inc()
	GatewayRequestDuration.WithLabelValues(replica, method).Observe(durationSeconds)
}

// RecordKernelReported records the kernel's own timing; zero means not reported and is skipped
func RecordKernelReported(replica, mode string, seconds float64) {
	if seconds > 0 {
		KernelReportedDuration.WithLabelValues(replica, mode).Observe(seconds)
	}
}

// WorkerBusy adjusts the busy worker gauge by delta (+1 on start, -1 on finish)
func WorkerBusy(replica string, delta float64) {
	GatewayBusyWorkers.WithLabelValues(replica).Add(delta)
}

// RecordAttempt increments the attempt counter for an endpoint and outcome
func RecordAttempt(endpoint, outcome string) {
	DispatchAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordDispatch records the final result and total latency of a logical request
func RecordDispatch(kind, result string, durationSeconds float64) {
	DispatchTotal.WithLabelValues(kind, result).Inc()
	DispatchDuration.WithLabelValues(kind, result).Observe(durationSeconds)
}

// RecordOutcomeRow counts an outcome row write attempt for a sink
func RecordOutcomeRow(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OutcomeRowsTotal.WithLabelValues(sink, status).Inc()
}
