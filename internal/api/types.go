package api

import "github.com/stringlate/appdir/internal/apps"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// ApplicationResponse is the JSON form of a directory entry
type ApplicationResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Summary       string `json:"summary,omitempty"`
	Icon          string `json:"icon,omitempty"`
	SourceCodeURL string `json:"sourceCodeUrl,omitempty"`
}

// ApplicationListResponse is returned by the application listing endpoint
type ApplicationListResponse struct {
	Applications []ApplicationResponse `json:"applications"`
	// Count is the number of entries in this response
	Count int `json:"count"`
	// Total is the number of entries in the directory, before filtering
	Total int `json:"total"`
	// Limited is set when the response was capped at the default limit
	Limited bool `json:"limited"`
}

// SyncAcceptedResponse is returned when a sync request has been started
type SyncAcceptedResponse struct {
	Status string `json:"status"`
}

// NewApplicationResponse converts a directory entry
func NewApplicationResponse(app apps.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:            app.ID(),
		Name:          app.Name(),
		Summary:       app.Summary(),
		Icon:          app.Icon(),
		SourceCodeURL: app.SourceCodeURL(),
	}
}
