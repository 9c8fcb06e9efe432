package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/jsonutil"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/services"
)

// SearchRequest for POST /api/search
type SearchRequest struct {
	// Value is kept raw so numeric payloads (a phone number sent as a
	// JSON number) coerce to the string the standardizers expect.
	Value    json.RawMessage `json:"value"`
	Category models.Category `json:"category"`
	// Registry optionally narrows phase 1 to one registry by name.
	Registry string `json:"registry,omitempty"`
}

// SearchHandler handles two-phase value search HTTP requests.
type SearchHandler struct {
	searchService services.SearchService
	logger        *zap.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searchService services.SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		logger:        logger,
	}
}

// RegisterRoutes registers the search handler's routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.Presence)
	mux.HandleFunc("GET /api/registries/{rid}/rows", h.RegistryRows)
	mux.HandleFunc("GET /api/derived/{vid}/rows", h.DerivedRows)
}

// Presence handles POST /api/search: phase-1 counts across all sources.
func (h *SearchHandler) Presence(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	value := jsonutil.FlexibleStringValue(req.Value)
	result, err := h.searchService.SearchPresence(r.Context(), value, req.Category, req.Registry)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RegistryRows handles GET /api/registries/{rid}/rows?value=&limit=
func (h *SearchHandler) RegistryRows(w http.ResponseWriter, r *http.Request) {
	registryID, ok := ParseRegistryID(w, r, h.logger)
	if !ok {
		return
	}

	value := r.URL.Query().Get("value")
	result, err := h.searchService.FetchRegistryRows(r.Context(), registryID, value, queryLimit(r))
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DerivedRows handles GET /api/derived/{vid}/rows?column=&value=&limit=
func (h *SearchHandler) DerivedRows(w http.ResponseWriter, r *http.Request) {
	derivedID, ok := ParseDerivedID(w, r, h.logger)
	if !ok {
		return
	}

	column := r.URL.Query().Get("column")
	value := r.URL.Query().Get("value")
	result, err := h.searchService.FetchDerivedRows(r.Context(), derivedID, column, value, queryLimit(r))
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// queryLimit parses the optional limit query parameter; zero means "use
// the service default".
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
