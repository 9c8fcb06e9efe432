package models

import (
	"errors"
	"testing"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
)

func TestColumnMapValidate(t *testing.T) {
	t.Run("normalizes types and keeps order", func(t *testing.T) {
		m := ColumnMap{
			{Name: "name", Type: "text"},
			{Name: "age", Type: "integer"},
			{Name: "score", Type: "REAL"},
			{Name: "photo", Type: "BLOB", HoldsBinary: true},
			{Name: "notes", Type: "VARCHAR(255)"},
		}
		out, dropped, err := m.Validate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(dropped) != 0 {
			t.Errorf("unexpected dropped columns: %v", dropped)
		}
		wantTypes := []ColumnType{TypeText, TypeInteger, TypeReal, TypeBlob, TypeText}
		for i, spec := range out {
			if spec.Type != wantTypes[i] {
				t.Errorf("column %q type = %v, expected %v", spec.Name, spec.Type, wantTypes[i])
			}
		}
		wantNames := []string{"name", "age", "score", "photo", "notes"}
		for i, name := range out.Names() {
			if name != wantNames[i] {
				t.Errorf("order not preserved: got %v", out.Names())
				break
			}
		}
	})

	t.Run("reserved identifier dropped not fatal", func(t *testing.T) {
		m := ColumnMap{
			{Name: "record_id", Type: "TEXT"},
			{Name: "phone", Type: "TEXT"},
		}
		out, dropped, err := m.Validate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(dropped) != 1 || dropped[0] != "record_id" {
			t.Errorf("dropped = %v, expected [record_id]", dropped)
		}
		if len(out) != 1 || out[0].Name != "phone" {
			t.Errorf("out = %v", out.Names())
		}
	})

	t.Run("only reserved identifier fails", func(t *testing.T) {
		m := ColumnMap{{Name: "RECORD_ID", Type: "TEXT"}}
		if _, _, err := m.Validate(); err == nil {
			t.Fatal("expected error for map declaring only the reserved column")
		}
	})

	t.Run("duplicate column fails", func(t *testing.T) {
		m := ColumnMap{
			{Name: "phone", Type: "TEXT"},
			{Name: "phone", Type: "TEXT"},
		}
		_, _, err := m.Validate()
		if err == nil {
			t.Fatal("expected duplicate column error")
		}
		if apperrors.KindOf(err) != apperrors.KindValidation {
			t.Errorf("kind = %v, expected validation", apperrors.KindOf(err))
		}
	})

	t.Run("empty map fails", func(t *testing.T) {
		var m ColumnMap
		if _, _, err := m.Validate(); err == nil {
			t.Fatal("expected error for empty column map")
		}
	})

	t.Run("injection pattern in name fails", func(t *testing.T) {
		m := ColumnMap{{Name: "x'; DROP TABLE users--", Type: "TEXT"}}
		_, _, err := m.Validate()
		if err == nil {
			t.Fatal("expected injection error")
		}
		if !errors.As(err, new(*apperrors.Error)) {
			t.Errorf("expected structured error, got %T", err)
		}
	})
}

func TestPostgresType(t *testing.T) {
	tests := []struct {
		declared ColumnType
		expected string
	}{
		{TypeText, "TEXT"},
		{TypeInteger, "BIGINT"},
		{TypeReal, "DOUBLE PRECISION"},
		{TypeBlob, "BYTEA"},
		{"DECIMAL(10,2)", "TEXT"},
		{"", "TEXT"},
	}
	for _, tt := range tests {
		if got := tt.declared.PostgresType(); got != tt.expected {
			t.Errorf("PostgresType(%q) = %q, expected %q", tt.declared, got, tt.expected)
		}
	}
}

func TestBinaryColumns(t *testing.T) {
	m := ColumnMap{
		{Name: "name", Type: TypeText},
		{Name: "photo", Type: TypeBlob, HoldsBinary: true},
		{Name: "scan", Type: TypeText, HoldsBinary: true},
	}
	got := m.BinaryColumns()
	if len(got) != 2 || got[0] != "photo" || got[1] != "scan" {
		t.Errorf("BinaryColumns() = %v", got)
	}
}

func TestCategory(t *testing.T) {
	for _, c := range Categories() {
		if !c.IsValid() {
			t.Errorf("category %q should be valid", c)
		}
		if _, ok := c.Func(); !ok {
			t.Errorf("category %q has no standardization function", c)
		}
	}
	if Category("dates").IsValid() {
		t.Error("unknown category reported valid")
	}
}
