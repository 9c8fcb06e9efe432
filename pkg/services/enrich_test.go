package services

import (
	"reflect"
	"testing"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/standardize"
)

func TestBuildDerivedSpecs(t *testing.T) {
	columns := models.ColumnMap{
		{Name: "Work Phone", Type: models.TypeText},
		{Name: "email", Type: models.TypeText},
		{Name: "website", Type: models.TypeText},
	}

	specs, err := buildDerivedSpecs(columns, map[string]string{
		"website":    standardize.FuncWebDomains,
		"Work Phone": standardize.FuncPhoneNumbers,
		"email":      standardize.FuncEmails,
	})
	if err != nil {
		t.Fatalf("buildDerivedSpecs: %v", err)
	}

	// Ordered by source column name for deterministic layout.
	wantSources := []string{"Work Phone", "email", "website"}
	wantDerived := []string{
		"Work_Phone_enriched_phone_numbers",
		"email_enriched_emails",
		"website_enriched_web_domains",
	}
	for i, spec := range specs {
		if spec.SourceColumn != wantSources[i] {
			t.Errorf("spec %d source = %q, want %q", i, spec.SourceColumn, wantSources[i])
		}
		if spec.DerivedColumn != wantDerived[i] {
			t.Errorf("spec %d derived = %q, want %q", i, spec.DerivedColumn, wantDerived[i])
		}
		if spec.Function == nil {
			t.Errorf("spec %d has no function", i)
		}
	}
}

func TestBuildDerivedSpecsValidation(t *testing.T) {
	columns := models.ColumnMap{{Name: "phone", Type: models.TypeText}}

	tests := []struct {
		name    string
		mapping map[string]string
	}{
		{"empty mapping", map[string]string{}},
		{"unknown column", map[string]string{"missing": standardize.FuncEmails}},
		{"unknown function", map[string]string{"phone": "no_such_function"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildDerivedSpecs(columns, tt.mapping)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if apperrors.KindOf(err) != apperrors.KindValidation {
				t.Errorf("expected validation error, got kind %q", apperrors.KindOf(err))
			}
		})
	}
}

func TestBuildDerivedSpecsCollision(t *testing.T) {
	// "a b" and "a_b" sanitize to the same identifier.
	columns := models.ColumnMap{
		{Name: "a b", Type: models.TypeText},
		{Name: "a_b", Type: models.TypeText},
	}
	_, err := buildDerivedSpecs(columns, map[string]string{
		"a b": standardize.FuncEmails,
		"a_b": standardize.FuncEmails,
	})
	if err == nil {
		t.Fatal("expected collision error, got nil")
	}
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("expected validation error, got kind %q", apperrors.KindOf(err))
	}
}

func TestUniqueSourceColumns(t *testing.T) {
	specs := []derivedColumnSpec{
		{SourceColumn: "contact"},
		{SourceColumn: "contact"},
		{SourceColumn: "website"},
	}
	got := uniqueSourceColumns(specs)
	want := []string{"contact", "website"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("uniqueSourceColumns = %v, want %v", got, want)
	}
}

func TestStandardizeCell(t *testing.T) {
	emails, _ := standardize.ByName(standardize.FuncEmails)

	if got := standardizeCell(emails, "Contact: ADA@Example.COM"); got != "ada@example.com" {
		t.Errorf("standardizeCell = %v, want ada@example.com", got)
	}
	if got := standardizeCell(emails, "no email here"); got != nil {
		t.Errorf("unstandardizable value should yield nil, got %v", got)
	}
	if got := standardizeCell(emails, nil); got != nil {
		t.Errorf("nil cell should yield nil, got %v", got)
	}
	if got := standardizeCell(emails, ""); got != nil {
		t.Errorf("empty cell should yield nil, got %v", got)
	}
}
