package cache

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	fanOutWidth  = 2
	fanOutLevels = 3
)

// TenantPath returns the cache directory of a tenant.
func (m *Manager) TenantPath(tenant string) (string, error) {
	if m.root == "" {
		return "", fmt.Errorf("%w: no cache root configured", ErrCachePathUninitialized)
	}
	if tenant == "" || strings.ContainsAny(tenant, `/\`) || tenant == "." || tenant == ".." {
		return "", fmt.Errorf("%w: invalid tenant %q", ErrCachePathUninitialized, tenant)
	}
	return filepath.Join(m.root, tenant), nil
}

// ComputePath returns the path a file with the given checksum is staged at.
//
// The checksum is split into 2-character segments, up to 3 levels deep, so
// "abcdef0123" lands in <root>/<tenant>/ab/cd/ef/abcdef0123.
func (m *Manager) ComputePath(tenant, checksum string) (string, error) {
	if err := validateChecksum(checksum); err != nil {
		return "", err
	}
	dir, err := m.TenantPath(tenant)
	if err != nil {
		return "", err
	}

	parts := append([]string{dir}, fanOut(checksum)...)
	parts = append(parts, checksum)
	return filepath.Join(parts...), nil
}

func fanOut(checksum string) []string {
	segments := make([]string, 0, fanOutLevels)
	for idx := 0; idx+fanOutWidth < len(checksum) && len(segments) < fanOutLevels; idx += fanOutWidth {
		segments = append(segments, checksum[idx:idx+fanOutWidth])
	}
	return segments
}

func validateChecksum(checksum string) error {
	if checksum == "" || checksum == "." || checksum == ".." || strings.ContainsAny(checksum, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidChecksum, checksum)
	}
	return nil
}

// FileLocation converts a local path into the URI stored on entries.
func FileLocation(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// LocalPath extracts the filesystem path from an entry location.
// It reports false for empty or non-file locations.
func LocalPath(location string) (string, bool) {
	if location == "" {
		return "", false
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), u.Path != ""
	case "":
		return filepath.FromSlash(location), true
	default:
		return "", false
	}
}
