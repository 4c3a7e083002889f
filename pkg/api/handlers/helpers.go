package handlers

import (
	"net/http"
	"strconv"

	"github.com/marmos91/nearstore/pkg/tenant"
)

// maxPayloadBytes bounds request message bodies. The largest message kind
// carries 1000 checksums.
const maxPayloadBytes = 4 << 20

// tenantOrError returns the tenant resolved by the tenant middleware.
func tenantOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, ok := tenant.FromContext(r.Context())
	if !ok || name == "" {
		BadRequest(w, "Tenant is required")
		return "", false
	}
	return name, true
}

// queryBool parses a boolean query parameter. A missing parameter is false.
func queryBool(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		BadRequest(w, "Invalid "+name+" parameter")
		return false, false
	}
	return v, true
}

// queryInt parses a non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		BadRequest(w, "Invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}
