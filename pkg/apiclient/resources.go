package apiclient

import (
	"context"
	"net/url"
	"strconv"

	"github.com/marmos91/nearstore/pkg/api/handlers"
	"github.com/marmos91/nearstore/pkg/batch"
	"github.com/marmos91/nearstore/pkg/scheduler"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// Submit sends a raw request message of kind and returns the admission
// decision.
func (c *Client) Submit(ctx context.Context, tenant, kind string, payload []byte) (batch.Decision, error) {
	var d batch.Decision
	err := c.post(ctx, tenantPath(tenant, "requests", url.PathEscape(kind)), payload, &d)
	return d, err
}

// ListGroups lists the request groups of a tenant. An empty status lists
// every status; a zero limit uses the server default.
func (c *Client) ListGroups(ctx context.Context, tenant string, status models.GroupStatus, limit int) ([]*models.RequestGroup, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := tenantPath(tenant, "groups")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var groups []*models.RequestGroup
	if err := c.get(ctx, path, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup returns one request group.
func (c *Client) GetGroup(ctx context.Context, tenant, groupID string) (*models.RequestGroup, error) {
	var g models.RequestGroup
	if err := c.get(ctx, tenantPath(tenant, "groups", url.PathEscape(groupID)), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// DescribeCache returns the cache location of a tenant with the state of
// its maintenance jobs.
func (c *Client) DescribeCache(ctx context.Context, tenant string) (*scheduler.Descriptor, error) {
	var d scheduler.Descriptor
	if err := c.get(ctx, tenantPath(tenant, "cache"), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PurgeCache queues a purge of the tenant cache. The error is an *APIError
// with status 409 while a cleanup of the tenant is running.
func (c *Client) PurgeCache(ctx context.Context, tenant string, force bool) (handlers.MaintenanceResponse, error) {
	var r handlers.MaintenanceResponse
	err := c.post(ctx, tenantPath(tenant, "cache", "purge")+"?force="+strconv.FormatBool(force), nil, &r)
	return r, err
}

// VerifyCache queues a coherence check of the tenant cache.
func (c *Client) VerifyCache(ctx context.Context, tenant string) (handlers.MaintenanceResponse, error) {
	var r handlers.MaintenanceResponse
	err := c.post(ctx, tenantPath(tenant, "cache", "verify"), nil, &r)
	return r, err
}

// Ready probes /health/ready and returns the component reports. The error
// is an *APIError with status 503 when a component is unhealthy.
func (c *Client) Ready(ctx context.Context) ([]handlers.ComponentHealth, error) {
	var components []handlers.ComponentHealth
	err := c.get(ctx, "/health/ready", &components)
	return components, err
}
