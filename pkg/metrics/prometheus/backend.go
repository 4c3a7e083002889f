package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/metrics"
)

// backendMetrics is the Prometheus implementation of backend.Metrics.
type backendMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewBackendMetrics creates a Prometheus-backed backend.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBackendMetrics() backend.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &backendMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_backend_operations_total",
				Help: "Total number of storage driver operations by storage, operation and status",
			},
			[]string{"storage", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nearstore_backend_operation_duration_milliseconds",
				Help: "Duration of storage driver operations in milliseconds",
				Buckets: []float64{
					10,     // 10ms - deletes
					100,    // 100ms
					1000,   // 1s - small objects
					10000,  // 10s - large objects
					60000,  // 1m
					600000, // 10m - tape recalls
				},
			},
			[]string{"storage", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_backend_bytes_transferred_total",
				Help: "Total bytes moved by storage drivers",
			},
			[]string{"storage", "direction"},
		),
	}
}

func (m *backendMetrics) ObserveOperation(storage, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(storage, operation, status).Inc()
	m.operationDuration.WithLabelValues(storage, operation).Observe(duration.Seconds() * 1000)
}

func (m *backendMetrics) RecordBytes(storage, operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}

	direction := "write"
	if operation == "retrieve" {
		direction = "read"
	}
	m.bytesTransferred.WithLabelValues(storage, direction).Add(float64(bytes))
}
