package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stringlate/appdir/internal/api/common"
	"github.com/stringlate/appdir/internal/versions"
)

// UpstreamReporter reports the circuit breaker state of every upstream host
type UpstreamReporter interface {
	BreakerStates() map[string]string
}

// HealthRouter creates a router for health check endpoints.
// upstreams may be nil, in which case readiness carries no upstream details.
func HealthRouter(directory Directory, upstreams UpstreamReporter) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(directory, upstreams))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once an index has been loaded or synced.
// An open breaker does not affect readiness since the cached index is still served.
func readinessHandler(directory Directory, upstreams UpstreamReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !directory.Loaded() {
			common.WriteErrorResponse(w, "application index not loaded yet", http.StatusServiceUnavailable)
			return
		}
		resp := HealthResponse{Status: "ready"}
		if upstreams != nil {
			resp.Upstreams = upstreams.BreakerStates()
		}
		common.WriteJSONResponse(w, resp, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
