package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stringlate/appdir/internal/api/common"
	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/status"
	pkgsync "github.com/stringlate/appdir/internal/sync"
	"github.com/stringlate/appdir/internal/sync/coordinator"
	"github.com/stringlate/appdir/internal/telemetry"
)

// Directory is the read side of the application directory used by the API
type Directory interface {
	Loaded() bool
	Len() int
	Applications(applyLimit bool, filter string) []apps.Application
}

// Routes handles the versioned directory and sync endpoints
type Routes struct {
	directory   Directory
	coordinator coordinator.Coordinator
	metrics     *telemetry.DirectoryMetrics
}

// NewRoutes creates a new Routes instance. metrics may be nil.
func NewRoutes(directory Directory, coord coordinator.Coordinator, metrics *telemetry.DirectoryMetrics) *Routes {
	return &Routes{
		directory:   directory,
		coordinator: coord,
		metrics:     metrics,
	}
}

// Router creates the router for the v1 endpoints
func (rr *Routes) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/applications", rr.listApplications)
	r.Post("/sync", rr.requestSync)
	r.Get("/sync/status", rr.getSyncStatus)

	return r
}

// listApplications handles GET /v1/applications?q=<filter>&all=<bool>
func (rr *Routes) listApplications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	all := false
	if raw := query.Get("all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			common.WriteErrorResponse(w, "invalid value for all: "+raw, http.StatusBadRequest)
			return
		}
		all = parsed
	}
	filter := query.Get("q")

	entries := rr.directory.Applications(!all, filter)
	rr.metrics.RecordQuery(r.Context(), strings.TrimSpace(filter) != "", !all)

	resp := ApplicationListResponse{
		Applications: make([]ApplicationResponse, 0, len(entries)),
		Count:        len(entries),
		Total:        rr.directory.Len(),
		Limited:      !all && len(entries) == apps.DefaultLimit,
	}
	for _, app := range entries {
		resp.Applications = append(resp.Applications, NewApplicationResponse(app))
	}

	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// requestSync handles POST /v1/sync
func (rr *Routes) requestSync(w http.ResponseWriter, r *http.Request) {
	observer := pkgsync.LogObserver{Logger: slog.Default().With("trigger", "api")}

	err := rr.coordinator.RequestSync(observer)
	switch {
	case errors.Is(err, pkgsync.ErrSyncInProgress):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to start sync", "error", err)
		common.WriteErrorResponse(w, "failed to start sync", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, SyncAcceptedResponse{Status: "accepted"}, http.StatusAccepted)
}

// getSyncStatus handles GET /v1/sync/status
func (rr *Routes) getSyncStatus(w http.ResponseWriter, _ *http.Request) {
	current := rr.coordinator.GetStatus()
	if current == nil {
		current = &status.SyncStatus{Phase: status.SyncPhaseIdle}
	}
	common.WriteJSONResponse(w, current, http.StatusOK)
}
