// Package cache implements the nearline staging cache.
//
// Files retrieved from nearline storage are staged on local disk under a
// per-tenant root and recorded in an Index. Entries are evicted once their
// expiration date has passed (or unconditionally on a forced purge), and a
// coherence pass removes index rows whose file disappeared from disk.
//
// Capacity accounting is advisory: the configured per-tenant maximum is
// reported alongside usage but never enforced with locks.
package cache

import (
	"slices"
	"time"
)

// InternalCacheName is the location name reported for the local cache.
const InternalCacheName = "internal-cache"

// Entry is a cache index record.
type Entry struct {
	Tenant         string    `json:"tenant"`
	Checksum       string    `json:"checksum"`
	FileSize       int64     `json:"file_size"`
	FileName       string    `json:"file_name,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	Type           string    `json:"type,omitempty"`
	Location       string    `json:"location"`
	ExpirationDate time.Time `json:"expiration_date"`
	GroupIDs       []string  `json:"group_ids,omitempty"`

	// InternalCache is true when the file is staged on local disk by this
	// service. External entries carry the plugin name in ExternalCache.
	InternalCache bool   `json:"internal_cache"`
	ExternalCache string `json:"external_cache,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the entry is eligible for eviction at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpirationDate.Before(now)
}

// HasGroup reports whether groupID already renewed this entry.
func (e *Entry) HasGroup(groupID string) bool {
	_, found := slices.BinarySearch(e.GroupIDs, groupID)
	return found
}

// AddGroups merges ids into the sorted group set and reports whether it changed.
func (e *Entry) AddGroups(ids ...string) bool {
	changed := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		pos, found := slices.BinarySearch(e.GroupIDs, id)
		if found {
			continue
		}
		e.GroupIDs = slices.Insert(e.GroupIDs, pos, id)
		changed = true
	}
	return changed
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.GroupIDs = slices.Clone(e.GroupIDs)
	return &c
}

// AddRequest carries the attributes of a file being staged or refreshed.
type AddRequest struct {
	Tenant         string
	Checksum       string
	FileSize       int64
	FileName       string
	MimeType       string
	Type           string
	Location       string
	ExpirationDate time.Time
	GroupIDs       []string

	// ExternalCache names the plugin that staged the file. Empty means the
	// file lives in the internal cache.
	ExternalCache string
}

// Query selects entries of one tenant, ordered by checksum.
//
// Paging is keyset based: pass the last checksum of the previous page in
// After. Deleting rows between pages does not shift later pages.
type Query struct {
	// InternalOnly restricts the result to internal cache entries.
	InternalOnly bool

	// ExpiredBefore, when non-zero, selects entries expiring strictly before it.
	ExpiredBefore time.Time

	// After is the exclusive lower bound on checksum.
	After string

	// Limit caps the page size. Zero means no limit.
	Limit int
}

// Matches reports whether e satisfies the query filters (ignoring paging).
func (q Query) Matches(e *Entry) bool {
	if q.InternalOnly && !e.InternalCache {
		return false
	}
	if !q.ExpiredBefore.IsZero() && !e.ExpirationDate.Before(q.ExpiredBefore) {
		return false
	}
	return e.Checksum > q.After
}

// Usage aggregates index rows of a tenant.
type Usage struct {
	Entries         int64
	InternalEntries int64
	InternalBytes   int64
}

// Capacity reports the cache budget of a tenant. FreeBytes goes negative
// when usage overshoots the configured maximum.
type Capacity struct {
	MaxBytes  int64 `json:"max_bytes"`
	UsedBytes int64 `json:"used_bytes"`
	FreeBytes int64 `json:"free_bytes"`
}

// LocationInfo describes the internal cache as a storage location.
type LocationInfo struct {
	Name                  string `json:"name"`
	AllowPhysicalDeletion bool   `json:"allow_physical_deletion"`
	Files                 int64  `json:"files"`
	UsedBytes             int64  `json:"used_bytes"`
	MaxBytes              int64  `json:"max_bytes"`
}

// PurgeResult summarizes one purge pass.
type PurgeResult struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}
