package models

import (
	"time"

	"github.com/google/uuid"
)

// DerivedDataset is a structural copy of a source dataset's table plus one
// derived column per enrichment mapping entry.
//
// Invariant: the set of row identifiers in the derived table is always a
// subset of the source table's. Sync shrinks the gap; it never removes
// rows once added.
type DerivedDataset struct {
	ID        uuid.UUID `json:"id"`
	SourceID  uuid.UUID `json:"source_dataset_id"`
	Name      string    `json:"name"`
	TableName string    `json:"table_name"`
	Columns   ColumnMap `json:"columns"`
	// Mapping is {source column -> standardization function name}.
	Mapping map[string]string `json:"mapping"`
	// DerivedColumns lists the derived column names actually added, in
	// the bit-exact naming convention <sanitize(col)>_enriched_<func>.
	DerivedColumns []string  `json:"derived_columns"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// SyncOutcome is the per-derived-dataset result of SyncAllForSource.
type SyncOutcome struct {
	DerivedDatasetID uuid.UUID `json:"derived_dataset_id"`
	Name             string    `json:"name"`
	RowsSynced       int       `json:"rows_synced"`
	Err              string    `json:"error,omitempty"`
}
