// Package v0 provides the REST API handlers for the sync service.
package v0

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ukasha007/mizuho-algolia/internal/guard"
	"github.com/Ukasha007/mizuho-algolia/internal/reconcile"
	"github.com/Ukasha007/mizuho-algolia/internal/status"
	"github.com/Ukasha007/mizuho-algolia/internal/sync"
	"github.com/Ukasha007/mizuho-algolia/internal/versions"
)

// ExecutionIDHeader carries the idempotency key of an externally
// triggered sync request.
const ExecutionIDHeader = "X-Execution-Id"

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WebhookRequest is the payload of a content-change webhook
type WebhookRequest struct {
	ExecutionID string `json:"executionId"`
	Collection  string `json:"collection"`
	Region      string `json:"region,omitempty"`
}

// StatusResponse is the body of GET /v0/status
type StatusResponse struct {
	Units  map[string]*status.SyncStatus `json:"units"`
	Active []string                      `json:"active"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	service *sync.Service
	guard   *guard.Guard
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc *sync.Service, g *guard.Guard) *Routes {
	return &Routes{
		service: svc,
		guard:   g,
	}
}

// Router creates a new router for the sync API
func Router(svc *sync.Service, g *guard.Guard) http.Handler {
	routes := NewRoutes(svc, g)

	r := chi.NewRouter()

	r.Post("/sync", routes.syncAll)
	r.Post("/sync/{unit}", routes.syncUnit)
	r.Post("/webhook", routes.webhook)
	r.Get("/status", routes.getStatus)

	return r
}

// syncAll handles POST /v0/sync: sync every configured unit
func (rr *Routes) syncAll(w http.ResponseWriter, r *http.Request) {
	trigger := sync.Trigger{
		ExecutionID: r.Header.Get(ExecutionIDHeader),
		Manual:      r.Header.Get(ExecutionIDHeader) == "",
	}

	results, err := rr.service.SyncAll(r.Context(), trigger)
	if err != nil {
		rr.writeSyncError(w, err)
		return
	}

	rr.writeJSONResponse(w, http.StatusOK, results)
}

// syncUnit handles POST /v0/sync/{unit}: sync one unit by name
func (rr *Routes) syncUnit(w http.ResponseWriter, r *http.Request) {
	unitName := chi.URLParam(r, "unit")

	trigger := sync.Trigger{
		ExecutionID: r.Header.Get(ExecutionIDHeader),
		Manual:      r.Header.Get(ExecutionIDHeader) == "",
	}

	result, err := rr.service.SyncUnit(r.Context(), unitName, trigger)
	if err != nil {
		rr.writeSyncError(w, err)
		return
	}

	if result.Skipped {
		rr.writeJSONResponse(w, http.StatusAccepted, result)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, result)
}

// webhook handles POST /v0/webhook: content-change notifications.
// The collection and optional region select the unit to sync.
func (rr *Routes) webhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}
	if req.Collection == "" {
		rr.writeErrorResponse(w, "collection is required", http.StatusBadRequest)
		return
	}

	unitName := ""
	for _, unit := range rr.service.Units() {
		if unit.Collection == req.Collection && unit.Region == req.Region {
			unitName = unit.Name
			break
		}
	}
	if unitName == "" {
		rr.writeErrorResponse(w, "No sync unit configured for this collection", http.StatusNotFound)
		return
	}

	trigger := sync.Trigger{ExecutionID: req.ExecutionID}
	result, err := rr.service.SyncUnit(r.Context(), unitName, trigger)
	if err != nil {
		rr.writeSyncError(w, err)
		return
	}

	if result.Skipped {
		rr.writeJSONResponse(w, http.StatusAccepted, result)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, result)
}

// getStatus handles GET /v0/status: per-unit sync status plus the units
// currently in flight
func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	units, err := rr.service.Status(r.Context())
	if err != nil {
		slog.Error("failed to load sync status", "error", err)
		rr.writeErrorResponse(w, "Failed to load sync status", http.StatusInternalServerError)
		return
	}

	active := rr.guard.Active()
	if active == nil {
		active = []string{}
	}

	rr.writeJSONResponse(w, http.StatusOK, StatusResponse{
		Units:  units,
		Active: active,
	})
}

// writeSyncError maps sync errors to HTTP status codes
func (rr *Routes) writeSyncError(w http.ResponseWriter, err error) {
	var unknownErr *sync.UnknownUnitError
	if errors.As(err, &unknownErr) {
		rr.writeErrorResponse(w, unknownErr.Error(), http.StatusNotFound)
		return
	}

	// An aborted reconciliation is a conflict between the fetched data and
	// the index, not a server fault.
	var thresholdErr *reconcile.ThresholdError
	if errors.As(err, &thresholdErr) {
		rr.writeErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Error("sync request failed", "error", err)
	rr.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("failed to encode version info", "error", err)
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
