package requests

import (
	"fmt"
	"time"
)

// StoreFile is one file to ingest from Origin into Storage.
type StoreFile struct {
	Checksum     string `json:"checksum" validate:"required"`
	Algorithm    string `json:"algorithm,omitempty" validate:"omitempty,oneof=md5 sha1 sha256 sha512 adler32"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Type         string `json:"type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty" validate:"gte=0"`
	Origin       string `json:"origin" validate:"required,url"`
	Storage      string `json:"storage" validate:"required"`
	SubDirectory string `json:"sub_directory,omitempty"`
	Owner        string `json:"owner,omitempty"`
}

// StoreRequest asks to store a group of files.
type StoreRequest struct {
	GroupID string      `json:"group_id" validate:"required"`
	Files   []StoreFile `json:"files" validate:"required,min=1,dive"`
}

// DeleteFile is one file to remove from a storage.
type DeleteFile struct {
	Checksum    string `json:"checksum" validate:"required"`
	Storage     string `json:"storage" validate:"required"`
	Owner       string `json:"owner,omitempty"`
	ForceDelete bool   `json:"force_delete,omitempty"`
}

// DeleteRequest asks to delete a group of files.
type DeleteRequest struct {
	GroupID string       `json:"group_id" validate:"required"`
	Files   []DeleteFile `json:"files" validate:"required,min=1,dive"`
}

// ReferenceFile registers a file already present at URL.
type ReferenceFile struct {
	Checksum string `json:"checksum" validate:"required"`
	Storage  string `json:"storage" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Type     string `json:"type,omitempty"`
	FileSize int64  `json:"file_size,omitempty" validate:"gte=0"`
	Owner    string `json:"owner,omitempty"`
}

// ReferenceRequest asks to reference a group of files.
type ReferenceRequest struct {
	GroupID string          `json:"group_id" validate:"required"`
	Files   []ReferenceFile `json:"files" validate:"required,min=1,dive"`
}

// AvailabilityRequest asks to stage files in the cache until ExpirationDate.
type AvailabilityRequest struct {
	GroupID        string     `json:"group_id" validate:"required"`
	Checksums      []string   `json:"checksums" validate:"required,min=1,dive,required"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// CopyFile copies a stored file to another storage.
type CopyFile struct {
	Checksum           string `json:"checksum" validate:"required"`
	DestinationStorage string `json:"destination_storage" validate:"required"`
	SubDirectory       string `json:"sub_directory,omitempty"`
	Owner              string `json:"owner,omitempty"`
}

// CopyRequest asks to copy a group of files.
type CopyRequest struct {
	GroupID string     `json:"group_id" validate:"required"`
	Files   []CopyFile `json:"files" validate:"required,min=1,dive"`
}

// RetryRequest replays the failed requests of a group or of a set of owners.
type RetryRequest struct {
	GroupID string   `json:"group_id,omitempty" validate:"required_without=Owners"`
	Owners  []string `json:"owners,omitempty" validate:"omitempty,dive,required"`
	Kind    Kind     `json:"kind" validate:"required"`
}

// CancelGroupsRequest cancels request groups.
type CancelGroupsRequest struct {
	GroupIDs []string `json:"group_ids" validate:"required,min=1,dive,required"`
}

func (r StoreRequest) Group() string        { return r.GroupID }
func (r DeleteRequest) Group() string       { return r.GroupID }
func (r ReferenceRequest) Group() string    { return r.GroupID }
func (r AvailabilityRequest) Group() string { return r.GroupID }
func (r CopyRequest) Group() string         { return r.GroupID }
func (r RetryRequest) Group() string        { return r.GroupID }
func (r CancelGroupsRequest) Group() string { return "" }

func (r StoreRequest) Items() int        { return len(r.Files) }
func (r DeleteRequest) Items() int       { return len(r.Files) }
func (r ReferenceRequest) Items() int    { return len(r.Files) }
func (r AvailabilityRequest) Items() int { return len(r.distinctChecksums()) }
func (r CopyRequest) Items() int         { return len(r.Files) }
func (r RetryRequest) Items() int        { return 1 }
func (r CancelGroupsRequest) Items() int { return len(r.GroupIDs) }

// distinctChecksums drops repeated checksums, keeping the first occurrence.
// A file is made available once however often it is listed.
func (r AvailabilityRequest) distinctChecksums() []string {
	seen := make(map[string]struct{}, len(r.Checksums))
	out := make([]string, 0, len(r.Checksums))
	for _, c := range r.Checksums {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Expiration returns the expiration the group should carry.
func (r AvailabilityRequest) Expiration() *time.Time { return r.ExpirationDate }

// CheckRetry reports whether the retry can be replayed.
//
// Store retries work by group or by owners. Availability retries work by
// group only. Every other combination is ErrUnsupportedRetry.
func (r RetryRequest) CheckRetry() error {
	switch {
	case r.Kind == KindStore:
		return nil
	case r.Kind == KindAvailability && r.GroupID != "":
		return nil
	case r.Kind == KindAvailability:
		return fmt.Errorf("%w: availability requests can only be retried by group", ErrUnsupportedRetry)
	default:
		return fmt.Errorf("%w: %s requests cannot be retried", ErrUnsupportedRetry, r.Kind)
	}
}
