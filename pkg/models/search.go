package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistryMatch is a per-registry presence count.
type RegistryMatch struct {
	RegistryID uuid.UUID `json:"registry_id"`
	Name       string    `json:"name"`
	RowCount   int64     `json:"row_count"`
	HasData    bool      `json:"has_data"`
}

// DerivedColumnMatch is a presence count for one derived column of one
// derived dataset.
type DerivedColumnMatch struct {
	DatasetID        uuid.UUID `json:"dataset_id"`
	DerivedDatasetID uuid.UUID `json:"derived_dataset_id"`
	Name             string    `json:"name"`
	DerivedTable     string    `json:"derived_table"`
	SourceColumn     string    `json:"source_column"`
	DerivedColumn    string    `json:"derived_column"`
	RowCount         int64     `json:"row_count"`
}

// PresenceResult is the phase-1 search result: counts only, never rows.
type PresenceResult struct {
	Key               string               `json:"key"`
	Category          Category             `json:"category"`
	Registries        []RegistryMatch      `json:"registries"`
	DerivedColumns    []DerivedColumnMatch `json:"derived_columns"`
	SourcesConsidered int                  `json:"sources_considered"`
	MatchedSources    int                  `json:"matched_sources"`
	Elapsed           time.Duration        `json:"elapsed_ns"`
}

// RowsResult is a phase-2 detail result: full rows for one selected
// source, bounded by the caller's limit.
type RowsResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}
