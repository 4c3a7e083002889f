package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nearstore/pkg/store/models"
)

// DefaultGroupListLimit caps list responses when no limit is given.
const DefaultGroupListLimit = 100

// GroupReader reads request groups. *groups.Tracker implements it.
type GroupReader interface {
	Get(ctx context.Context, tenant, groupID string) (*models.RequestGroup, error)
	List(ctx context.Context, tenant string, status models.GroupStatus, limit int) ([]*models.RequestGroup, error)
}

// GroupHandler exposes request groups.
type GroupHandler struct {
	groups GroupReader
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups GroupReader) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// List handles GET /api/v1/tenants/{tenant}/groups?status=&limit=.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	name, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	var status models.GroupStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, ok = models.ParseGroupStatus(raw); !ok {
			BadRequest(w, "Unknown group status: "+raw)
			return
		}
	}

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	if limit == 0 {
		limit = DefaultGroupListLimit
	}

	list, err := h.groups.List(r.Context(), name, status, limit)
	if err != nil {
		InternalServerError(w, "Failed to list groups")
		return
	}
	if list == nil {
		list = []*models.RequestGroup{}
	}
	OK(w, list)
}

// Get handles GET /api/v1/tenants/{tenant}/groups/{groupID}.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	group, err := h.groups.Get(r.Context(), name, chi.URLParam(r, "groupID"))
	if err != nil {
		if errors.Is(err, models.ErrGroupNotFound) {
			NotFound(w, "Group not found")
			return
		}
		InternalServerError(w, "Failed to get group")
		return
	}
	OK(w, group)
}
