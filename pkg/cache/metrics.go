package cache

import "time"

// Metrics provides observability for cache maintenance.
//
// This is optional. A nil Metrics disables collection.
type Metrics interface {
	// ObservePurge records one purge pass
	ObservePurge(tenant string, force bool, result PurgeResult, duration time.Duration)

	// ObserveCoherence records one coherence pass and the orphans it removed
	ObserveCoherence(tenant string, removed int, duration time.Duration)

	// RecordLookup records hits and misses of an availability lookup
	RecordLookup(tenant string, hits, misses int)

	// RecordUsage records the current usage of a tenant cache
	RecordUsage(tenant string, entries, usedBytes, maxBytes int64)
}

func (m *Manager) observePurge(tenant string, force bool, result PurgeResult, start time.Time) {
	if m.metrics != nil {
		m.metrics.ObservePurge(tenant, force, result, time.Since(start))
	}
}

func (m *Manager) observeCoherence(tenant string, removed int, start time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveCoherence(tenant, removed, time.Since(start))
	}
}

func (m *Manager) recordLookup(tenant string, hits, misses int) {
	if m.metrics != nil {
		m.metrics.RecordLookup(tenant, hits, misses)
	}
}

func (m *Manager) recordUsage(tenant string, usage Usage, max int64) {
	if m.metrics != nil {
		m.metrics.RecordUsage(tenant, usage.Entries, usage.InternalBytes, max)
	}
}
