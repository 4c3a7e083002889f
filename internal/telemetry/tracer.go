package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for nearstore spans.
const (
	AttrTenant    = "nearstore.tenant"
	AttrKind      = "nearstore.request.kind"
	AttrGroupID   = "nearstore.request.group_id"
	AttrBatchSize = "nearstore.batch.size"

	AttrChecksum = "file.checksum"
	AttrSize     = "file.size"
	AttrStorage  = "storage.name"
	AttrTier     = "storage.tier"
	AttrBucket   = "storage.bucket"
	AttrKey      = "storage.key"

	AttrCacheHit     = "cache.hit"
	AttrCacheForce   = "cache.purge.force"
	AttrCacheRemoved = "cache.removed"
)

// Span names for internal operations.
// Format: <component>.<operation>
const (
	SpanBatchDispatch = "batch.dispatch"

	SpanCachePurge     = "cache.purge"
	SpanCacheCoherence = "cache.coherence"
	SpanCacheLookup    = "cache.lookup"

	SpanFilesStore        = "files.store"
	SpanFilesDelete       = "files.delete"
	SpanFilesCopy         = "files.copy"
	SpanFilesAvailability = "files.availability"
	SpanFilesRetry        = "files.retry"

	SpanBackendStore    = "backend.store"
	SpanBackendRetrieve = "backend.retrieve"
	SpanBackendDelete   = "backend.delete"
)

// Tenant returns an attribute for the tenant name
func Tenant(name string) attribute.KeyValue {
	return attribute.String(AttrTenant, name)
}

// Kind returns an attribute for the request kind
func Kind(kind string) attribute.KeyValue {
	return attribute.String(AttrKind, kind)
}

// GroupID returns an attribute for a request group
func GroupID(id string) attribute.KeyValue {
	return attribute.String(AttrGroupID, id)
}

// BatchSize returns an attribute for the number of messages dispatched
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// Checksum returns an attribute for a file checksum
func Checksum(sum string) attribute.KeyValue {
	return attribute.String(AttrChecksum, sum)
}

// Size returns an attribute for a file size
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// Storage returns an attribute for a storage location name
func Storage(name string) attribute.KeyValue {
	return attribute.String(AttrStorage, name)
}

// Tier returns an attribute for a storage tier
func Tier(tier string) attribute.KeyValue {
	return attribute.String(AttrTier, tier)
}

// Bucket returns an attribute for an S3 bucket
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// CacheHit returns an attribute for a cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheForce returns an attribute for the forced purge flag
func CacheForce(force bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheForce, force)
}

// CacheRemoved returns an attribute for the number of removed entries
func CacheRemoved(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheRemoved, n)
}

// StartCacheSpan starts a span for a cache maintenance operation.
func StartCacheSpan(ctx context.Context, name, tenant string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Tenant(tenant)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartBatchSpan starts a span around the dispatch of one batch.
func StartBatchSpan(ctx context.Context, kind, tenant string, size int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanBatchDispatch, trace.WithAttributes(
		Kind(kind),
		Tenant(tenant),
		BatchSize(size),
	))
}

// StartBackendSpan starts a span for a backend driver call.
func StartBackendSpan(ctx context.Context, name, storage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Storage(storage)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartFilesSpan starts a span for a domain operation on one request group.
func StartFilesSpan(ctx context.Context, name, tenant, groupID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Tenant(tenant), GroupID(groupID)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
