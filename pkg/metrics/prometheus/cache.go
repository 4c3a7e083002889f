// Package prometheus provides the Prometheus implementations of the metrics
// interfaces declared by the cache, batch and backend packages.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	purgeRemoved      *prometheus.CounterVec
	purgeFailed       *prometheus.CounterVec
	purgeDuration     *prometheus.HistogramVec
	coherenceRemoved  *prometheus.CounterVec
	coherenceDuration *prometheus.HistogramVec
	lookups           *prometheus.CounterVec
	entries           *prometheus.GaugeVec
	usedBytes         *prometheus.GaugeVec
	maxBytes          *prometheus.GaugeVec
}

// maintenanceBuckets covers purge and coherence passes in milliseconds.
var maintenanceBuckets = []float64{
	10,     // 10ms - empty tenants
	100,    // 100ms
	1000,   // 1s - a few pages
	10000,  // 10s
	60000,  // 1m - large caches
	300000, // 5m
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		purgeRemoved: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_cache_purge_removed_total",
				Help: "Total number of cache entries removed by purge passes",
			},
			[]string{"tenant", "force"},
		),
		purgeFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_cache_purge_failed_total",
				Help: "Total number of cache entries a purge pass could not remove",
			},
			[]string{"tenant"},
		),
		purgeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nearstore_cache_purge_duration_milliseconds",
				Help:    "Duration of purge passes in milliseconds",
				Buckets: maintenanceBuckets,
			},
			[]string{"tenant"},
		),
		coherenceRemoved: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_cache_coherence_removed_total",
				Help: "Total number of index rows removed because their file was missing",
			},
			[]string{"tenant"},
		),
		coherenceDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nearstore_cache_coherence_duration_milliseconds",
				Help:    "Duration of coherence passes in milliseconds",
				Buckets: maintenanceBuckets,
			},
			[]string{"tenant"},
		),
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearstore_cache_lookups_total",
				Help: "Total number of checksums looked up by result",
			},
			[]string{"tenant", "result"}, // "hit", "miss"
		),
		entries: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nearstore_cache_entries",
				Help: "Current number of cache entries",
			},
			[]string{"tenant"},
		),
		usedBytes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nearstore_cache_used_bytes",
				Help: "Current bytes used by internal cache entries",
			},
			[]string{"tenant"},
		),
		maxBytes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nearstore_cache_max_bytes",
				Help: "Configured cache maximum",
			},
			[]string{"tenant"},
		),
	}
}

func (m *cacheMetrics) ObservePurge(tenant string, force bool, result cache.PurgeResult, duration time.Duration) {
	if m == nil {
		return
	}
	m.purgeRemoved.WithLabelValues(tenant, strconv.FormatBool(force)).Add(float64(result.Removed))
	if result.Failed > 0 {
		m.purgeFailed.WithLabelValues(tenant).Add(float64(result.Failed))
	}
	m.purgeDuration.WithLabelValues(tenant).Observe(duration.Seconds() * 1000)
}

func (m *cacheMetrics) ObserveCoherence(tenant string, removed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.coherenceRemoved.WithLabelValues(tenant).Add(float64(removed))
	m.coherenceDuration.WithLabelValues(tenant).Observe(duration.Seconds() * 1000)
}

func (m *cacheMetrics) RecordLookup(tenant string, hits, misses int) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(tenant, "hit").Add(float64(hits))
	m.lookups.WithLabelValues(tenant, "miss").Add(float64(misses))
}

func (m *cacheMetrics) RecordUsage(tenant string, entries, usedBytes, maxBytes int64) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(tenant).Set(float64(entries))
	m.usedBytes.WithLabelValues(tenant).Set(float64(usedBytes))
	m.maxBytes.WithLabelValues(tenant).Set(float64(maxBytes))
}
