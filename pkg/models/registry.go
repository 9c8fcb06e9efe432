package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tabula-hq/tabula-engine/pkg/standardize"
)

// Category scopes a knowledge registry and selects its standardization
// function. Category names deliberately match the function names used in
// enrichment mappings so search can bridge the two.
type Category string

const (
	CategoryPhoneNumbers Category = "phone_numbers"
	CategoryEmails       Category = "emails"
	CategoryWebDomains   Category = "web_domains"
)

// Categories returns the fixed category set.
func Categories() []Category {
	return []Category{CategoryPhoneNumbers, CategoryEmails, CategoryWebDomains}
}

// IsValid reports whether c is one of the fixed categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPhoneNumbers, CategoryEmails, CategoryWebDomains:
		return true
	}
	return false
}

// Func returns the category's standardization function.
func (c Category) Func() (standardize.Func, bool) {
	return standardize.ByName(string(c))
}

// KeyColumn is the canonical key column present in every registry table.
// It carries a unique, non-null constraint: every stored key is the output
// of the category's standardization function, never a raw value.
const KeyColumn = "canonical_key"

// KnowledgeRegistry is a category-scoped table storing one row per
// canonical standardized key.
type KnowledgeRegistry struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Category      Category  `json:"category"`
	PrimaryColumn string    `json:"primary_column"`
	TableName     string    `json:"table_name"`
	KeyColumn     string    `json:"key_column"`
	Columns       ColumnMap `json:"columns"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Skip reasons recorded during registry uploads.
const (
	SkipStandardizationFailed = "standardization_failed"
	SkipKeyExists             = "key_already_exists"
)

// SkipItem itemizes one skipped upload row.
type SkipItem struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
	Value    string `json:"value"`
}

// UploadReport summarizes a registry upload.
type UploadReport struct {
	Total            int        `json:"total"`
	Processed        int        `json:"processed"`
	Added            int        `json:"added"`
	SkippedDuplicate int        `json:"skipped_duplicate"`
	SkippedInvalid   int        `json:"skipped_invalid"`
	Skips            []SkipItem `json:"skips,omitempty"`
}
