package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request Routing
	// ========================================================================
	KeyTenant    = "tenant"     // Tenant owning the request or cache
	KeyGroupID   = "group_id"   // Client-supplied request group identifier
	KeyKind      = "kind"       // Request kind: store, delete, reference, ...
	KeyRequestID = "request_id" // HTTP request ID or batch identifier
	KeyOwner     = "owner"      // File owner recorded on references
	KeyReason    = "reason"     // Denial or skip reason

	// ========================================================================
	// Batching
	// ========================================================================
	KeyBatchSize  = "batch_size"  // Number of messages in a dispatched batch
	KeyQueueDepth = "queue_depth" // Messages waiting in a tenant queue
	KeyItems      = "items"       // Files or checksums carried by a message

	// ========================================================================
	// Files & Storage
	// ========================================================================
	KeyChecksum = "checksum" // Content checksum
	KeyStorage  = "storage"  // Storage location name from the registry
	KeyLocation = "location" // URI of stored bytes
	KeyPath     = "path"     // Local filesystem path
	KeySize     = "size"     // File size in bytes
	KeyBucket   = "bucket"   // Cloud bucket name (S3)
	KeyKey      = "key"      // Object key in cloud storage
	KeyAttempt  = "attempt"  // Retry attempt number

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheUsed     = "cache_used"     // Bytes used by internal entries
	KeyCacheCapacity = "cache_capacity" // Configured maximum for the tenant
	KeyEvicted       = "evicted"        // Number of entries removed
	KeyExpiration    = "expiration"     // Entry expiration date
	KeyForce         = "force"          // Forced purge flag

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyOperation  = "operation"   // Sub-operation type for complex operations
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Tenant returns a slog.Attr for the tenant name
func Tenant(name string) slog.Attr {
	return slog.String(KeyTenant, name)
}

// GroupID returns a slog.Attr for a request group identifier
func GroupID(id string) slog.Attr {
	return slog.String(KeyGroupID, id)
}

// Kind returns a slog.Attr for the request kind
func Kind(kind string) slog.Attr {
	return slog.String(KeyKind, kind)
}

// Reason returns a slog.Attr for a denial reason
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// BatchSize returns a slog.Attr for a dispatched batch size
func BatchSize(n int) slog.Attr {
	return slog.Int(KeyBatchSize, n)
}

// Checksum returns a slog.Attr for a content checksum
func Checksum(sum string) slog.Attr {
	return slog.String(KeyChecksum, sum)
}

// Storage returns a slog.Attr for a storage location name
func Storage(name string) slog.Attr {
	return slog.String(KeyStorage, name)
}

// Location returns a slog.Attr for a stored bytes URI
func Location(uri string) slog.Attr {
	return slog.String(KeyLocation, uri)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Size returns a slog.Attr for a file size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Evicted returns a slog.Attr for number of entries evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Expiration returns a slog.Attr for an expiration date
func Expiration(t time.Time) slog.Attr {
	return slog.Time(KeyExpiration, t)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
