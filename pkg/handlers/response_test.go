package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
)

func TestServiceErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		keepDetail bool
	}{
		{
			name:       "validation",
			err:        apperrors.Validation("slot must be between 1 and 64", "slot", "99"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation",
			keepDetail: true,
		},
		{
			name:       "schema mismatch",
			err:        apperrors.SchemaMismatch("columns do not match dataset schema", "dataset", "contacts"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "schema_mismatch",
			keepDetail: true,
		},
		{
			name:       "not found",
			err:        apperrors.NotFound("dataset not found", "id", "x"),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
			keepDetail: true,
		},
		{
			name:       "conflict",
			err:        apperrors.Conflict("slot already occupied", "slot", "3"),
			wantStatus: http.StatusConflict,
			wantCode:   "conflict",
			keepDetail: true,
		},
		{
			name:       "database error is masked",
			err:        apperrors.Database("copy rows", errors.New("connection refused")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "database",
			keepDetail: false,
		},
		{
			name:       "unknown error is masked",
			err:        errors.New("something went sideways"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "database",
			keepDetail: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ServiceErrorResponse(rec, zap.NewNop(), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("error code = %q, want %q", body["error"], tt.wantCode)
			}

			if tt.keepDetail {
				if body["message"] != tt.err.Error() {
					t.Errorf("operational message = %q, want %q", body["message"], tt.err.Error())
				}
			} else if body["message"] != "internal error" {
				t.Errorf("infrastructure message should be masked, got %q", body["message"])
			}
		})
	}
}
