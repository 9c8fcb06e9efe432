package services

import (
	"testing"

	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/standardize"
)

func TestSpecsForCategory(t *testing.T) {
	mapping := map[string]string{
		"phone":   standardize.FuncPhoneNumbers,
		"mobile":  standardize.FuncPhoneNumbers,
		"email":   standardize.FuncEmails,
		"website": standardize.FuncWebDomains,
	}

	phones := specsForCategory(mapping, models.CategoryPhoneNumbers)
	if len(phones) != 2 {
		t.Fatalf("expected 2 phone specs, got %d", len(phones))
	}
	for _, spec := range phones {
		if spec.FuncName != standardize.FuncPhoneNumbers {
			t.Errorf("spec %q has function %q", spec.SourceColumn, spec.FuncName)
		}
	}

	emails := specsForCategory(mapping, models.CategoryEmails)
	if len(emails) != 1 || emails[0].SourceColumn != "email" {
		t.Fatalf("unexpected email specs: %+v", emails)
	}

	if got := specsForCategory(map[string]string{}, models.CategoryEmails); got != nil {
		t.Errorf("empty mapping should yield no specs, got %+v", got)
	}
}

func TestSpecsForMapping(t *testing.T) {
	specs := specsForMapping(map[string]string{
		"Office Phone": standardize.FuncPhoneNumbers,
	})
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}
	if specs[0].DerivedColumn != "Office_Phone_enriched_phone_numbers" {
		t.Errorf("derived column = %q", specs[0].DerivedColumn)
	}
}
