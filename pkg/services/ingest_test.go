package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/models"
)

func testDataset() *models.DatasetDescriptor {
	return &models.DatasetDescriptor{
		Name: "contacts",
		Columns: models.ColumnMap{
			{Name: "full_name", Type: models.TypeText},
			{Name: "email", Type: models.TypeText},
			{Name: "age", Type: models.TypeInteger},
		},
	}
}

func TestValidateColumnLayout(t *testing.T) {
	tests := []struct {
		name     string
		uploaded []string
		wantErr  bool
		contains string
	}{
		{
			name:     "exact match",
			uploaded: []string{"full_name", "email", "age"},
		},
		{
			name:     "missing column",
			uploaded: []string{"full_name", "email"},
			wantErr:  true,
			contains: "missing: age",
		},
		{
			name:     "unexpected column",
			uploaded: []string{"full_name", "email", "age", "phone"},
			wantErr:  true,
			contains: "unexpected: phone",
		},
		{
			name:     "missing and unexpected",
			uploaded: []string{"full_name", "phone", "age"},
			wantErr:  true,
			contains: "missing: email",
		},
		{
			name:     "wrong order",
			uploaded: []string{"email", "full_name", "age"},
			wantErr:  true,
			contains: "out of order",
		},
		{
			name:     "empty upload",
			uploaded: nil,
			wantErr:  true,
			contains: "missing: full_name, email, age",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateColumnLayout(testDataset(), tt.uploaded)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if apperrors.KindOf(err) != apperrors.KindSchemaMismatch {
					t.Errorf("expected schema mismatch, got kind %q", apperrors.KindOf(err))
				}
				if !strings.Contains(err.Error(), tt.contains) {
					t.Errorf("error %q does not mention %q", err.Error(), tt.contains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConvertRows(t *testing.T) {
	columns := testDataset().Columns

	rows := [][]any{
		{"Ada Lovelace", "ada@example.com", float64(36)},
		{"Alan Turing", nil, float64(41)},
	}

	inserts, err := convertRows(columns, rows)
	if err != nil {
		t.Fatalf("convertRows: %v", err)
	}
	if len(inserts) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(inserts))
	}

	for i, insert := range inserts {
		if len(insert) != len(columns)+1 {
			t.Fatalf("row %d: expected %d values, got %d", i, len(columns)+1, len(insert))
		}
		id, ok := insert[0].(string)
		if !ok {
			t.Fatalf("row %d: identifier is %T, want string", i, insert[0])
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("row %d: identifier %q is not a UUID", i, id)
		}
	}

	if inserts[0][0] == inserts[1][0] {
		t.Error("row identifiers must be unique")
	}
	if got := inserts[0][3]; got != int64(36) {
		t.Errorf("integer cell = %v (%T), want int64(36)", got, got)
	}
	if got := inserts[1][2]; got != nil {
		t.Errorf("nil cell should stay nil, got %v", got)
	}
}

func TestConvertRowsRejectsShortRow(t *testing.T) {
	columns := testDataset().Columns

	_, err := convertRows(columns, [][]any{{"only one value"}})
	if err == nil {
		t.Fatal("expected error for short row")
	}
	if apperrors.KindOf(err) != apperrors.KindSchemaMismatch {
		t.Errorf("expected schema mismatch, got kind %q", apperrors.KindOf(err))
	}
}

func TestConvertCell(t *testing.T) {
	tests := []struct {
		name string
		typ  models.ColumnType
		in   any
		want any
	}{
		{"nil stays nil", models.TypeText, nil, nil},
		{"text passthrough", models.TypeText, "hello", "hello"},
		{"text from number", models.TypeText, float64(42), "42"},
		{"text from bool", models.TypeText, true, "true"},
		{"integer from json number", models.TypeInteger, float64(7), int64(7)},
		{"integer from int", models.TypeInteger, 7, int64(7)},
		{"real passthrough", models.TypeReal, 3.5, 3.5},
		{"blob from string", models.TypeBlob, "abc", []byte("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertCell(tt.typ, tt.in)
			switch want := tt.want.(type) {
			case []byte:
				gotBytes, ok := got.([]byte)
				if !ok || string(gotBytes) != string(want) {
					t.Errorf("convertCell = %v (%T), want %v", got, got, want)
				}
			default:
				if got != tt.want {
					t.Errorf("convertCell = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
				}
			}
		})
	}
}
