package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/services"
)

// CreateRegistryRequest for POST /api/registries
type CreateRegistryRequest struct {
	Name          string           `json:"name"`
	Category      models.Category  `json:"category"`
	PrimaryColumn string           `json:"primary_column"`
	Columns       models.ColumnMap `json:"columns,omitempty"`
	// Data optionally seeds the registry during creation.
	Data *models.TabularData `json:"data,omitempty"`
}

// CreateRegistryResponse for POST /api/registries
type CreateRegistryResponse struct {
	Registry *models.KnowledgeRegistry `json:"registry"`
	Report   *models.UploadReport      `json:"report,omitempty"`
}

// RegistryListResponse for GET /api/registries
type RegistryListResponse struct {
	Registries []*models.KnowledgeRegistry `json:"registries"`
	Total      int                         `json:"total"`
}

// RegistryUploadRequest for POST /api/registries/{rid}/uploads
type RegistryUploadRequest struct {
	Data models.TabularData `json:"data"`
}

// RegistriesHandler handles knowledge registry HTTP requests.
type RegistriesHandler struct {
	registryService services.RegistryService
	logger          *zap.Logger
}

// NewRegistriesHandler creates a new RegistriesHandler.
func NewRegistriesHandler(registryService services.RegistryService, logger *zap.Logger) *RegistriesHandler {
	return &RegistriesHandler{
		registryService: registryService,
		logger:          logger,
	}
}

// RegisterRoutes registers the registry handler's routes on the given mux.
func (h *RegistriesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/registries", h.Create)
	mux.HandleFunc("GET /api/registries", h.List)
	mux.HandleFunc("GET /api/registries/{rid}", h.Get)
	mux.HandleFunc("DELETE /api/registries/{rid}", h.Delete)
	mux.HandleFunc("POST /api/registries/{rid}/uploads", h.Upload)
}

// Create handles POST /api/registries
func (h *RegistriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	registry, report, err := h.registryService.Register(r.Context(), req.Name, req.Category, req.PrimaryColumn, req.Columns, req.Data)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	response := CreateRegistryResponse{Registry: registry, Report: report}
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/registries
func (h *RegistriesHandler) List(w http.ResponseWriter, r *http.Request) {
	registries, err := h.registryService.List(r.Context())
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	response := RegistryListResponse{Registries: registries, Total: len(registries)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/registries/{rid}
func (h *RegistriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	registryID, ok := ParseRegistryID(w, r, h.logger)
	if !ok {
		return
	}

	registry, err := h.registryService.Get(r.Context(), registryID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: registry}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/registries/{rid}
func (h *RegistriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	registryID, ok := ParseRegistryID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.registryService.Delete(r.Context(), registryID); err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "registry deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Upload handles POST /api/registries/{rid}/uploads
func (h *RegistriesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	registryID, ok := ParseRegistryID(w, r, h.logger)
	if !ok {
		return
	}

	var req RegistryUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	report, err := h.registryService.Upload(r.Context(), registryID, req.Data)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
