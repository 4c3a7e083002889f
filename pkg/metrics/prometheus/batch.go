package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/nearstore/pkg/batch"
	"github.com/marmos91/nearstore/pkg/metrics"
)

// batchMetrics is the Prometheus implementation of batch.Metrics.
type batchMetrics struct {
	admissions       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchSize     *prometheus.HistogramVec
	dispatchErrors   *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
}

// NewBatchMetrics creates a Prometheus-backed batch.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBatchMetrics() batch.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &batchMetrics{
		admissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_batch_admissions_total",
				Help: "Total number of admission decisions by kind, tenant and decision",
			},
			[]string{"kind", "tenant", "decision"}, // decision: "granted", "denied"
		),
		dispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nearstore_batch_dispatch_duration_milliseconds",
				Help: "Duration of batch dispatch calls in milliseconds",
				Buckets: []float64{
					1,      // 1ms - references
					10,     // 10ms
					100,    // 100ms
					1000,   // 1s - small transfers
					10000,  // 10s
					60000,  // 1m - nearline staging
					600000, // 10m
				},
			},
			[]string{"kind"},
		),
		dispatchSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nearstore_batch_dispatch_size",
				Help:    "Distribution of messages per dispatch call",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"kind"},
		),
		dispatchErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_batch_dispatch_errors_total",
				Help: "Total number of failed dispatch calls",
			},
			[]string{"kind"},
		),
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nearstore_batch_queue_depth",
				Help: "Current number of queued messages per kind and tenant",
			},
			[]string{"kind", "tenant"},
		),
	}
}

func (m *batchMetrics) RecordAdmission(kind, tenant string, granted bool) {
	if m == nil {
		return
	}
	decision := "granted"
	if !granted {
		decision = "denied"
	}
	m.admissions.WithLabelValues(kind, tenant, decision).Inc()
}

func (m *batchMetrics) ObserveDispatch(kind string, size int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(kind).Observe(duration.Seconds() * 1000)
	m.dispatchSize.WithLabelValues(kind).Observe(float64(size))
	if err != nil {
		m.dispatchErrors.WithLabelValues(kind).Inc()
	}
}

func (m *batchMetrics) SetQueueDepth(kind, tenant string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(kind, tenant).Set(float64(depth))
}
