package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateDatasetRequest for POST /api/datasets
type CreateDatasetRequest struct {
	Name    string           `json:"name"`
	Slot    int              `json:"slot"`
	Columns models.ColumnMap `json:"columns"`
}

// DatasetListResponse for GET /api/datasets
type DatasetListResponse struct {
	Datasets []*models.DatasetDescriptor `json:"datasets"`
	Total    int                         `json:"total"`
}

// UploadRequest for POST /api/datasets/{did}/uploads
type UploadRequest struct {
	Filename string             `json:"filename"`
	FileKind string             `json:"file_kind,omitempty"`
	Data     models.TabularData `json:"data"`
	// Override replaces a previous upload with the same filename instead
	// of rejecting it.
	Override bool `json:"override,omitempty"`
}

// BulkUploadRequest for POST /api/datasets/{did}/uploads/bulk
type BulkUploadRequest struct {
	Files []models.BulkFile `json:"files"`
}

// BulkUploadResponse reports the per-file outcomes of a bulk upload.
type BulkUploadResponse struct {
	Outcomes []models.FileOutcome `json:"outcomes"`
}

// UploadListResponse for GET /api/datasets/{did}/uploads
type UploadListResponse struct {
	Uploads []*models.UploadRecord `json:"uploads"`
	Total   int                    `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// DatasetsHandler handles dataset lifecycle and ingestion HTTP requests.
type DatasetsHandler struct {
	datasetService services.DatasetService
	ingestService  services.IngestService
	logger         *zap.Logger
}

// NewDatasetsHandler creates a new DatasetsHandler.
func NewDatasetsHandler(
	datasetService services.DatasetService,
	ingestService services.IngestService,
	logger *zap.Logger,
) *DatasetsHandler {
	return &DatasetsHandler{
		datasetService: datasetService,
		ingestService:  ingestService,
		logger:         logger,
	}
}

// RegisterRoutes registers the dataset handler's routes on the given mux.
func (h *DatasetsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets", h.Create)
	mux.HandleFunc("GET /api/datasets", h.List)
	mux.HandleFunc("GET /api/datasets/{did}", h.Get)
	mux.HandleFunc("DELETE /api/datasets/{did}", h.Delete)
	mux.HandleFunc("POST /api/datasets/{did}/uploads", h.Upload)
	mux.HandleFunc("POST /api/datasets/{did}/uploads/bulk", h.UploadBulk)
	mux.HandleFunc("GET /api/datasets/{did}/uploads", h.ListUploads)
}

// Create handles POST /api/datasets
func (h *DatasetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	dataset, err := h.datasetService.Provision(r.Context(), req.Name, req.Slot, req.Columns)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: dataset}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/datasets
func (h *DatasetsHandler) List(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.datasetService.List(r.Context())
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	response := DatasetListResponse{Datasets: datasets, Total: len(datasets)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/datasets/{did}
func (h *DatasetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	dataset, err := h.datasetService.Get(r.Context(), datasetID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: dataset}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/datasets/{did}
func (h *DatasetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasetService.Delete(r.Context(), datasetID); err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "dataset deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Upload handles POST /api/datasets/{did}/uploads
func (h *DatasetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	upload, err := h.ingestService.Ingest(r.Context(), datasetID, req.Filename, req.FileKind, req.Data, req.Override, nil)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: upload}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UploadBulk handles POST /api/datasets/{did}/uploads/bulk
func (h *DatasetsHandler) UploadBulk(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	var req BulkUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	outcomes, err := h.ingestService.IngestBulk(r.Context(), datasetID, req.Files)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	response := BulkUploadResponse{Outcomes: outcomes}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListUploads handles GET /api/datasets/{did}/uploads
func (h *DatasetsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := ParseDatasetID(w, r, h.logger)
	if !ok {
		return
	}

	uploads, err := h.ingestService.ListUploads(r.Context(), datasetID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	response := UploadListResponse{Uploads: uploads, Total: len(uploads)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
