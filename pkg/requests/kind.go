// Package requests defines the inbound file-operation messages, their kinds
// and the per-kind admission limits.
package requests

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind is returned for a kind no worker handles.
	ErrUnknownKind = errors.New("unknown request kind")

	// ErrUnsupportedRetry is returned for retry requests that cannot be
	// replayed (delete, reference, availability by owner).
	ErrUnsupportedRetry = errors.New("unsupported retry")
)

// Kind identifies a request type and the worker that batches it.
type Kind string

const (
	KindStore        Kind = "store"
	KindDelete       Kind = "delete"
	KindReference    Kind = "reference"
	KindAvailability Kind = "availability"
	KindCopy         Kind = "copy"
	KindRetry        Kind = "retry"
	KindCancel       Kind = "cancel"
)

// Kinds lists every kind in dispatch order.
var Kinds = []Kind{KindStore, KindDelete, KindReference, KindAvailability, KindCopy, KindRetry, KindCancel}

// Maximum number of files per request group.
const (
	MaxStoreFiles        = 500
	MaxDeleteFiles       = 100
	MaxReferenceFiles    = 100
	MaxAvailabilityFiles = 1000
	MaxCopyFiles         = 500
	MaxRetryItems        = 1
	MaxCancelGroups      = 1000
)

var maxItems = map[Kind]int{
	KindStore:        MaxStoreFiles,
	KindDelete:       MaxDeleteFiles,
	KindReference:    MaxReferenceFiles,
	KindAvailability: MaxAvailabilityFiles,
	KindCopy:         MaxCopyFiles,
	KindRetry:        MaxRetryItems,
	KindCancel:       MaxCancelGroups,
}

// ParseKind resolves a kind name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := maxItems[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// MaxItems returns the default per-group limit of the kind.
func (k Kind) MaxItems() int {
	return maxItems[k]
}

// Tracked reports whether the kind creates request groups of its own.
// Retry and cancel act on existing groups instead.
func (k Kind) Tracked() bool {
	switch k {
	case KindStore, KindDelete, KindReference, KindAvailability, KindCopy:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}
