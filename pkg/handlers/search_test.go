package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/models"
)

type stubSearchService struct {
	gotValue    string
	gotCategory models.Category
	gotRegistry string
}

func (s *stubSearchService) SearchPresence(ctx context.Context, value string, category models.Category, registryFilter string) (*models.PresenceResult, error) {
	s.gotValue = value
	s.gotCategory = category
	s.gotRegistry = registryFilter
	return &models.PresenceResult{Key: value, Category: category}, nil
}

func (s *stubSearchService) FetchRegistryRows(ctx context.Context, registryID uuid.UUID, value string, limit int) (*models.RowsResult, error) {
	return &models.RowsResult{}, nil
}

func (s *stubSearchService) FetchDerivedRows(ctx context.Context, derivedID uuid.UUID, derivedColumn, value string, limit int) (*models.RowsResult, error) {
	return &models.RowsResult{}, nil
}

func TestPresenceCoercesNumericValue(t *testing.T) {
	svc := &stubSearchService{}
	h := NewSearchHandler(svc, zap.NewNop())

	body := `{"value": 5551234567, "category": "phone_numbers"}`
	r := httptest.NewRequest("POST", "/api/search", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Presence(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotValue != "5551234567" {
		t.Errorf("expected numeric value coerced to %q, got %q", "5551234567", svc.gotValue)
	}
	if svc.gotCategory != models.CategoryPhoneNumbers {
		t.Errorf("unexpected category %q", svc.gotCategory)
	}
}

func TestPresencePassesRegistryFilter(t *testing.T) {
	svc := &stubSearchService{}
	h := NewSearchHandler(svc, zap.NewNop())

	body := `{"value": "555-123-4567", "category": "phone_numbers", "registry": "known bad phones"}`
	r := httptest.NewRequest("POST", "/api/search", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Presence(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotValue != "555-123-4567" {
		t.Errorf("unexpected value %q", svc.gotValue)
	}
	if svc.gotRegistry != "known bad phones" {
		t.Errorf("unexpected registry filter %q", svc.gotRegistry)
	}
}
