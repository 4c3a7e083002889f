// Package tenant holds the configured tenant set and per-tenant cache limits.
package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tenant is one configured tenant.
type Tenant struct {
	Name string

	// CacheMaxSize overrides the default cache maximum (bytes). Zero means default.
	CacheMaxSize int64
}

// Registry is the set of active tenants. It implements cache.Limits.
type Registry struct {
	mu         sync.RWMutex
	defaultMax int64
	tenants    map[string]Tenant
}

// NewRegistry creates a registry with the default cache maximum.
func NewRegistry(defaultMax int64, tenants ...Tenant) (*Registry, error) {
	r := &Registry{defaultMax: defaultMax, tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a tenant, replacing a previous one with the same name.
func (r *Registry) Add(t Tenant) error {
	if t.Name == "" {
		return fmt.Errorf("tenant name is required")
	}
	if t.CacheMaxSize < 0 {
		return fmt.Errorf("tenant %q: cache max size cannot be negative", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.Name] = t
	return nil
}

// Active returns the tenant names in lexical order.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tenants))
	for name := range r.tenants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the tenant is configured.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tenants[name]
	return ok
}

// MaxCacheSize returns the cache maximum of a tenant. It reports false for
// unknown tenants and when neither an override nor a default is set.
func (r *Registry) MaxCacheSize(name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[name]
	if !ok {
		return 0, false
	}
	if t.CacheMaxSize > 0 {
		return t.CacheMaxSize, true
	}
	return r.defaultMax, r.defaultMax > 0
}

type contextKey struct{}

// WithTenant stores the tenant name in ctx.
func WithTenant(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKey{}, name)
}

// FromContext returns the tenant stored by WithTenant.
func FromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(contextKey{}).(string)
	return name, ok && name != ""
}
