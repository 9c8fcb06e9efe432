package models

// Bulk ingestion outcome statuses and skip reason tags.
const (
	BulkSucceeded = "succeeded"
	BulkSkipped   = "skipped"

	BulkReasonSchemaMismatch   = "schema_mismatch"
	BulkReasonDuplicateInBatch = "duplicate_in_batch"
	BulkReasonDuplicateInStore = "duplicate_in_store"
	BulkReasonParseFailure     = "parse_failure"
)

// FileOutcome is the per-file result of a bulk ingestion. Bulk ingestion
// never aborts on a single file: failures are accumulated here instead.
type FileOutcome struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	RowCount int    `json:"row_count,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// BulkFile pairs one parsed file with its name for bulk ingestion. Files
// that failed upstream parsing arrive with ParseFailed set so the outcome
// list can still account for them.
type BulkFile struct {
	Filename    string      `json:"filename"`
	FileKind    string      `json:"file_kind"`
	Data        TabularData `json:"data"`
	ParseFailed bool        `json:"parse_failed,omitempty"`
}
