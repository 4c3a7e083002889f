// Package middleware provides HTTP middleware for the nearstore API.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nearstore/pkg/tenant"
)

// TenantSet reports whether a tenant is configured.
type TenantSet interface {
	Has(name string) bool
}

// RequireTenant resolves the {tenant} URL parameter and stores it in the
// request context. Unknown tenants get 404.
//
// A nil set accepts every tenant.
func RequireTenant(tenants TenantSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "tenant")
			if name == "" {
				http.Error(w, "Tenant is required", http.StatusBadRequest)
				return
			}
			if tenants != nil && !tenants.Has(name) {
				http.Error(w, "Unknown tenant", http.StatusNotFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), name)))
		})
	}
}
