package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
)

// ApiResponse wraps data in the envelope clients expect.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceErrorResponse maps a service error onto an HTTP status by its
// kind and writes it. Operational errors keep their message; store
// failures are reported generically and logged instead.
func ServiceErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := apperrors.KindOf(err)

	status := http.StatusInternalServerError
	message := err.Error()
	switch kind {
	case apperrors.KindValidation, apperrors.KindConfiguration, apperrors.KindSchemaMismatch:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindConflict:
		status = http.StatusConflict
	default:
		logger.Error("Request failed", zap.Error(err))
		message = "internal error"
	}

	if werr := ErrorResponse(w, status, string(kind), message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
