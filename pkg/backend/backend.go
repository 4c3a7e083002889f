// Package backend defines the storage drivers files are stored on and
// retrieved from, and the registry resolving them by name.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
)

var (
	// ErrUnknownStorage is returned when no driver is registered under a name.
	ErrUnknownStorage = errors.New("unknown storage")

	// ErrNotFound is returned when a location holds no file.
	ErrNotFound = errors.New("file not found in storage")
)

// Tier classifies how quickly a storage serves reads.
type Tier string

const (
	// TierOnline storages serve reads directly.
	TierOnline Tier = "online"

	// TierNearline storages need files staged in the cache before reads.
	TierNearline Tier = "nearline"
)

// ParseTier returns the tier and whether the name is known.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(s); t {
	case TierOnline, TierNearline:
		return t, true
	}
	return "", false
}

// StoreInput describes a file handed to a driver.
type StoreInput struct {
	Tenant       string
	Checksum     string
	FileName     string
	SubDirectory string
	Size         int64
	Body         io.Reader
}

// Driver moves bytes to and from one storage.
//
// Locations are opaque strings returned by Store and passed back to
// Retrieve and Delete.
type Driver interface {
	Name() string
	Tier() Tier
	AllowsPhysicalDeletion() bool

	// Store writes the file and returns its location.
	Store(ctx context.Context, in StoreInput) (string, error)

	// Retrieve opens the file at location. Returns ErrNotFound when absent.
	Retrieve(ctx context.Context, location string) (io.ReadCloser, error)

	// Delete removes the file at location. Deleting a missing file is not
	// an error.
	Delete(ctx context.Context, location string) error
}

// Healthchecker is implemented by drivers that can probe their storage.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}

// Registry resolves drivers by storage name at call time.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates a registry holding drivers.
func NewRegistry(drivers ...Driver) (*Registry, error) {
	r := &Registry{drivers: make(map[string]Driver)}
	for _, d := range drivers {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a driver. Names must be unique.
func (r *Registry) Register(d Driver) error {
	if d == nil || d.Name() == "" {
		return fmt.Errorf("storage driver must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[d.Name()]; exists {
		return fmt.Errorf("storage %q is already registered", d.Name())
	}
	r.drivers[d.Name()] = d
	return nil
}

// Get returns the driver registered under name.
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, name)
	}
	return d, nil
}

// Names returns the registered storage names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Healthcheck probes every driver that supports it.
func (r *Registry) Healthcheck(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		d, err := r.Get(name)
		if err != nil {
			continue
		}
		hc, ok := d.(Healthchecker)
		if !ok {
			continue
		}
		if err := hc.Healthcheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("storage %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// PreferOnline orders storage names so online tiers come first, keeping the
// relative order otherwise. Unknown names go last.
func (r *Registry) PreferOnline(names []string) []string {
	rank := func(name string) int {
		d, err := r.Get(name)
		switch {
		case err != nil:
			return 2
		case d.Tier() == TierOnline:
			return 0
		default:
			return 1
		}
	}
	out := slices.Clone(names)
	slices.SortStableFunc(out, func(a, b string) int { return rank(a) - rank(b) })
	return out
}
