package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stringlate/appdir/internal/api"
	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/status"
	pkgsync "github.com/stringlate/appdir/internal/sync"
	"github.com/stringlate/appdir/internal/sync/coordinator/mocks"
)

func newDirectory(names ...string) *apps.Directory {
	d := apps.NewDirectory(nil)
	entries := make([]apps.Application, 0, len(names))
	for i, name := range names {
		entries = append(entries, apps.MustApplication(
			fmt.Sprintf("org.example.app%d", i), name, "summary of "+name, "icon.png", "https://example.org/"+name))
	}
	d.Replace(entries)
	return d
}

func serve(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(apps.NewDirectory(nil), mocks.NewMockCoordinator(ctrl))
	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		directory      *apps.Directory
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "index loaded",
			directory:      newDirectory("Reader"),
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "no index yet",
			directory:      apps.NewDirectory(nil),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "not loaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			server := api.NewServer(tt.directory, mocks.NewMockCoordinator(ctrl))
			rr := serve(t, server, http.MethodGet, "/readiness")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

type staticUpstreams map[string]string

func (s staticUpstreams) BreakerStates() map[string]string { return s }

func TestReadinessEndpoint_ReportsUpstreams(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(newDirectory("Reader"), mocks.NewMockCoordinator(ctrl),
		api.WithUpstreamReporter(staticUpstreams{"f-droid.org": "open"}))
	rr := serve(t, server, http.MethodGet, "/readiness")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ready","upstreams":{"f-droid.org":"open"}}`, rr.Body.String())
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(apps.NewDirectory(nil), mocks.NewMockCoordinator(ctrl))
	rr := serve(t, server, http.MethodGet, "/version")

	require.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	for _, key := range []string{"version", "commit", "build_date", "go_version", "platform"} {
		assert.Contains(t, response, key)
	}
}

func TestListApplications(t *testing.T) {
	t.Parallel()

	many := make([]string, apps.DefaultLimit+10)
	for i := range many {
		many[i] = fmt.Sprintf("App %03d", i)
	}

	tests := []struct {
		name          string
		directory     *apps.Directory
		query         string
		expectedCode  int
		expectedNames []string
		expectedCount int
		expectedTotal int
		limited       bool
	}{
		{
			name:          "empty directory",
			directory:     apps.NewDirectory(nil),
			expectedCode:  http.StatusOK,
			expectedNames: []string{},
		},
		{
			name:          "filter is case-insensitive",
			directory:     newDirectory("Reader", "News", "RSS READER"),
			query:         "?q=reader",
			expectedCode:  http.StatusOK,
			expectedNames: []string{"Reader", "RSS READER"},
			expectedCount: 2,
			expectedTotal: 3,
		},
		{
			name:          "default view is limited",
			directory:     newDirectory(many...),
			expectedCode:  http.StatusOK,
			expectedCount: apps.DefaultLimit,
			expectedTotal: len(many),
			limited:       true,
		},
		{
			name:          "all disables the limit",
			directory:     newDirectory(many...),
			query:         "?all=true",
			expectedCode:  http.StatusOK,
			expectedCount: len(many),
			expectedTotal: len(many),
		},
		{
			name:         "invalid all",
			directory:    newDirectory("Reader"),
			query:        "?all=maybe",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			server := api.NewServer(tt.directory, mocks.NewMockCoordinator(ctrl))
			rr := serve(t, server, http.MethodGet, "/v1/applications"+tt.query)

			require.Equal(t, tt.expectedCode, rr.Code)
			if tt.expectedCode != http.StatusOK {
				return
			}

			var resp api.ApplicationListResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedCount, resp.Count)
			assert.Len(t, resp.Applications, tt.expectedCount)
			assert.Equal(t, tt.expectedTotal, resp.Total)
			assert.Equal(t, tt.limited, resp.Limited)

			if tt.expectedNames != nil {
				names := make([]string, 0, len(resp.Applications))
				for _, app := range resp.Applications {
					names = append(names, app.Name)
				}
				assert.Equal(t, tt.expectedNames, names)
			}
		})
	}
}

func TestListApplications_ResponseFields(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(newDirectory("Reader"), mocks.NewMockCoordinator(ctrl))
	rr := serve(t, server, http.MethodGet, "/v1/applications")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"applications": [{
			"id": "org.example.app0",
			"name": "Reader",
			"summary": "summary of Reader",
			"icon": "icon.png",
			"sourceCodeUrl": "https://example.org/Reader"
		}],
		"count": 1,
		"total": 1,
		"limited": false
	}`, rr.Body.String())
}

func TestRequestSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody string
	}{
		{name: "accepted", expectedCode: http.StatusAccepted, expectedBody: "accepted"},
		{name: "already running", err: pkgsync.ErrSyncInProgress, expectedCode: http.StatusConflict, expectedBody: "in progress"},
		{name: "coordinator stopped", err: errors.New("coordinator is stopped"), expectedCode: http.StatusInternalServerError, expectedBody: "failed to start sync"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			coord := mocks.NewMockCoordinator(ctrl)
			coord.EXPECT().RequestSync(gomock.Any()).Return(tt.err)

			server := api.NewServer(apps.NewDirectory(nil), coord)
			rr := serve(t, server, http.MethodPost, "/v1/sync")

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestSyncStatus(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	lastSync := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coord := mocks.NewMockCoordinator(ctrl)
	coord.EXPECT().GetStatus().Return(&status.SyncStatus{
		Phase:            status.SyncPhaseComplete,
		LastSyncTime:     &lastSync,
		ApplicationCount: 4200,
	})

	server := api.NewServer(apps.NewDirectory(nil), coord)
	rr := serve(t, server, http.MethodGet, "/v1/sync/status")

	require.Equal(t, http.StatusOK, rr.Code)

	var got status.SyncStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, status.SyncPhaseComplete, got.Phase)
	assert.Equal(t, 4200, got.ApplicationCount)
	require.NotNil(t, got.LastSyncTime)
	assert.True(t, lastSync.Equal(*got.LastSyncTime))
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("appdir_applications 3\n"))
	})

	withMetrics := api.NewServer(apps.NewDirectory(nil), mocks.NewMockCoordinator(ctrl), api.WithMetricsHandler(metrics))
	rr := serve(t, withMetrics, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "appdir_applications"))

	without := api.NewServer(apps.NewDirectory(nil), mocks.NewMockCoordinator(ctrl))
	rr = serve(t, without, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMiddlewaresApplied(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test", "yes")
			next.ServeHTTP(w, r)
		})
	}

	server := api.NewServer(apps.NewDirectory(nil), mocks.NewMockCoordinator(ctrl),
		api.WithMiddlewares(mw, api.LoggingMiddleware))
	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "yes", rr.Header().Get("X-Test"))
}
