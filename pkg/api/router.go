package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/api/handlers"
	apimw "github.com/marmos91/nearstore/pkg/api/middleware"
)

// Dependencies are the components the API serves. Nil components leave
// their routes unregistered.
type Dependencies struct {
	Tenants    apimw.TenantSet
	Dispatcher handlers.Submitter
	Groups     handlers.GroupReader
	Cache      handlers.CacheMaintainer
	Describer  handlers.CacheDescriber

	// Checks are probed by /health/ready, keyed by component name.
	Checks map[string]handlers.Healthchecker
}

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET  /health                                   liveness
//   - GET  /health/ready                             readiness
//   - POST /api/v1/tenants/{tenant}/requests/{kind}  submit a request message
//   - GET  /api/v1/tenants/{tenant}/groups           list request groups
//   - GET  /api/v1/tenants/{tenant}/groups/{groupID} get one request group
//   - GET  /api/v1/tenants/{tenant}/cache            cache location descriptor
//   - POST /api/v1/tenants/{tenant}/cache/purge      purge the cache
//   - POST /api/v1/tenants/{tenant}/cache/verify     run a coherence check
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.Checks)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/api/v1/tenants/{tenant}", func(r chi.Router) {
		r.Use(apimw.RequireTenant(deps.Tenants))

		if deps.Dispatcher != nil {
			r.Post("/requests/{kind}", handlers.NewRequestHandler(deps.Dispatcher).Submit)
		}

		if deps.Groups != nil {
			groupHandler := handlers.NewGroupHandler(deps.Groups)
			r.Route("/groups", func(r chi.Router) {
				r.Get("/", groupHandler.List)
				r.Get("/{groupID}", groupHandler.Get)
			})
		}

		if deps.Cache != nil && deps.Describer != nil {
			cacheHandler := handlers.NewCacheHandler(deps.Cache, deps.Describer)
			r.Route("/cache", func(r chi.Router) {
				r.Get("/", cacheHandler.Describe)
				r.Post("/purge", cacheHandler.Purge)
				r.Post("/verify", cacheHandler.Verify)
			})
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each request with the internal logger: start at DEBUG,
// completion at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
