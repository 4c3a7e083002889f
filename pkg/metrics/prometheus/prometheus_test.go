package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/metrics"
)

func withRegistry(t *testing.T) {
	t.Helper()
	metrics.Reset()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)
}

func TestConstructorsReturnNilWhenDisabled(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, NewCacheMetrics())
	assert.Nil(t, NewBatchMetrics())
	assert.Nil(t, NewBackendMetrics())
}

func TestCacheMetrics(t *testing.T) {
	withRegistry(t)
	m := NewCacheMetrics().(*cacheMetrics)

	m.ObservePurge("acme", false, cache.PurgeResult{Removed: 3, Failed: 1}, 5*time.Millisecond)
	m.ObservePurge("acme", true, cache.PurgeResult{Removed: 2}, time.Millisecond)
	m.ObserveCoherence("acme", 4, time.Millisecond)
	m.RecordLookup("acme", 7, 2)
	m.RecordUsage("acme", 10, 1024, 4096)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.purgeRemoved.WithLabelValues("acme", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.purgeRemoved.WithLabelValues("acme", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.purgeFailed.WithLabelValues("acme")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.coherenceRemoved.WithLabelValues("acme")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.lookups.WithLabelValues("acme", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("acme", "miss")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.usedBytes.WithLabelValues("acme")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.maxBytes.WithLabelValues("acme")))
}

func TestBatchMetrics(t *testing.T) {
	withRegistry(t)
	m := NewBatchMetrics().(*batchMetrics)

	m.RecordAdmission("store", "acme", true)
	m.RecordAdmission("store", "acme", true)
	m.RecordAdmission("store", "acme", false)
	m.ObserveDispatch("store", 2, time.Millisecond, nil)
	m.ObserveDispatch("store", 1, time.Millisecond, errors.New("boom"))
	m.SetQueueDepth("store", "acme", 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.admissions.WithLabelValues("store", "acme", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admissions.WithLabelValues("store", "acme", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchErrors.WithLabelValues("store")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("store", "acme")))
}

func TestBackendMetrics(t *testing.T) {
	withRegistry(t)
	m := NewBackendMetrics().(*backendMetrics)

	m.ObserveOperation("tape", "retrieve", time.Second, nil)
	m.ObserveOperation("tape", "retrieve", time.Second, errors.New("offline"))
	m.RecordBytes("tape", "retrieve", 100)
	m.RecordBytes("tape", "store", 40)
	m.RecordBytes("tape", "store", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("tape", "retrieve", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("tape", "retrieve", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("tape", "read")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("tape", "write")))

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "nearstore_backend_operations_total")
}
