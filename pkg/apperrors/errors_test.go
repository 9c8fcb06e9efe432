package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageIncludesDetails(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "kind and message only",
			err:      Database("metadata query failed", nil),
			expected: "database: metadata query failed",
		},
		{
			name:     "field without value",
			err:      Validation("dataset name is required", "name", ""),
			expected: `validation: dataset name is required (field "name")`,
		},
		{
			name:     "field with value",
			err:      SchemaMismatch("unexpected column", "columns", "extra_col"),
			expected: `schema_mismatch: unexpected column (field "columns", value "extra_col")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestSentinelCompatibility(t *testing.T) {
	notFound := NotFound("dataset not found", "dataset_id", "abc")
	if !errors.Is(notFound, ErrNotFound) {
		t.Error("NotFound error should match ErrNotFound sentinel")
	}
	if errors.Is(notFound, ErrConflict) {
		t.Error("NotFound error should not match ErrConflict sentinel")
	}

	conflict := Conflict("duplicate dataset name", "name", "contacts")
	if !errors.Is(conflict, ErrConflict) {
		t.Error("Conflict error should match ErrConflict sentinel")
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("ingest batch failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Database error should unwrap to its cause")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"structured validation", Validation("bad", "f", "v"), KindValidation},
		{"wrapped structured", fmt.Errorf("outer: %w", Conflict("dup", "name", "x")), KindConflict},
		{"plain error", errors.New("boom"), KindDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsOperational(t *testing.T) {
	if !IsOperational(Validation("bad input", "", "")) {
		t.Error("validation errors are operational")
	}
	if IsOperational(Database("store down", errors.New("io"))) {
		t.Error("database errors are not operational")
	}
	if IsOperational(errors.New("plain")) {
		t.Error("plain errors are not operational")
	}
}
