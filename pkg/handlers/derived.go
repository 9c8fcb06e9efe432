package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/services"
)

// CreateDerivedRequest for POST /api/datasets/{did}/derived
type CreateDerivedRequest struct {
	Name string `json:"name,omitempty"`
	// Mapping is {source column -> standardization function name}.
	Mapping map[string]string `json:"mapping"`
}

// DerivedListResponse for GET /api/datasets/{did}/derived
type DerivedListResponse struct {
	DerivedDatasets []*models.DerivedDataset `json:"derived_datasets"`
	Total           int                      `json:"total"`
}

// SyncResponse for POST /api/derived/{vid}/sync
type SyncResponse struct {
	RowsSynced int `json:"rows_synced"`
}

// SyncAllResponse for POST /api/datasets/{did}/sync
type SyncAllResponse struct {
	Outcomes []models.SyncOutcome `json:"outcomes"`
}

// DerivedHandler handles derived dataset HTTP requests.
type DerivedHandler struct {
	enrichService services.EnrichService
	syncService   services.SyncService
	logger        *zap.Logger
}

// NewDerivedHandler creates a new DerivedHandler.
func NewDerivedHandler(
	enrichService services.EnrichService,
	syncService services.SyncService,
	logger *zap.Logger,
) *DerivedHandler {
	return &DerivedHandler{
		enrichService: enrichService,
		syncService:   syncService,
		logger:        logger,
	}
}

// RegisterRoutes registers the derived dataset handler's routes on the given mux.
func (h *DerivedHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets/{did}/derived", h.Create)
	mux.HandleFunc("GET /api/datasets/{did}/derived", h.List)
	mux.HandleFunc("POST /api/datasets/{did}/sync", h.SyncAll)
	mux.HandleFunc("GET /api/derived/{vid}", h.Get)
	mux.HandleFunc("POST /api/derived/{vid}/sync", h.Sync)
}

// Create handles POST /api/datasets/{did}/derived
func (h *DerivedHandler) Create(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateDerivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	derived, err := h.enrichService.CreateDerived(r.Context(), datasetID, req.Name, req.Mapping, nil)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: derived}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/datasets/{did}/derived
func (h *DerivedHandler) List(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	deriveds, err := h.enrichService.ListDerived(r.Context(), datasetID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	response := DerivedListResponse{DerivedDatasets: deriveds, Total: len(deriveds)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/derived/{vid}
func (h *DerivedHandler) Get(w http.ResponseWriter, r *http.Request) {
	derivedID, ok := ParseDerivedID(w, r, h.logger)
	if !ok {
		return
	}

	derived, err := h.enrichService.GetDerived(r.Context(), derivedID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: derived}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Sync handles POST /api/derived/{vid}/sync
func (h *DerivedHandler) Sync(w http.ResponseWriter, r *http.Request) {
	derivedID, ok := ParseDerivedID(w, r, h.logger)
	if !ok {
		return
	}

	n, err := h.syncService.Sync(r.Context(), derivedID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: SyncResponse{RowsSynced: n}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SyncAll handles POST /api/datasets/{did}/sync
func (h *DerivedHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	outcomes, err := h.syncService.SyncAllForSource(r.Context(), datasetID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: SyncAllResponse{Outcomes: outcomes}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
