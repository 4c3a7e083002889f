package cache

import (
	"context"
	"fmt"
)

// ExternalCache is a cache plugin that stages files outside the local disk.
//
// The manager tracks entries of external caches but only deletes their
// physical files when the plugin grants physical-deletion rights.
type ExternalCache interface {
	Name() string
	AllowsPhysicalDeletion() bool
	Delete(ctx context.Context, entry *Entry) error
}

// RegisterExternalCache makes a plugin available to purge. Registering a
// name twice replaces the previous plugin.
func (m *Manager) RegisterExternalCache(plugin ExternalCache) error {
	if plugin == nil || plugin.Name() == "" {
		return fmt.Errorf("external cache must have a name")
	}
	if plugin.Name() == InternalCacheName {
		return fmt.Errorf("external cache name %q is reserved", InternalCacheName)
	}

	m.extMu.Lock()
	defer m.extMu.Unlock()
	m.external[plugin.Name()] = plugin
	return nil
}

func (m *Manager) externalCache(name string) ExternalCache {
	m.extMu.RLock()
	defer m.extMu.RUnlock()
	return m.external[name]
}
