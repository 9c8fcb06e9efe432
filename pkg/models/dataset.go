package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxSlot bounds the dataset slot index. Slots are small operator-facing
// positions (1-based) and must be unique across datasets.
const MaxSlot = 64

// DatasetDescriptor describes one named, schema-defined dataset and its
// backing table. It owns the dataset's UploadRecords and DerivedDatasets;
// deletion cascades over them in an explicit ordered sequence.
type DatasetDescriptor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slot      int       `json:"slot"`
	TableName string    `json:"table_name"`
	Columns   ColumnMap `json:"columns"`
	// BinaryColumns lists columns known to hold embedded binary/image
	// content, derived from the column map at provisioning time.
	BinaryColumns []string  `json:"binary_columns,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UploadRecord is one ingestion event for a dataset. Immutable once
// created; removed only by the dataset's cascade delete.
type UploadRecord struct {
	ID        uuid.UUID `json:"id"`
	DatasetID uuid.UUID `json:"dataset_id"`
	Filename  string    `json:"filename"`
	RowCount  int       `json:"row_count"`
	FileKind  string    `json:"file_kind"`
	CreatedAt time.Time `json:"created_at"`
}

// TabularData is already-parsed tabular input supplied by the upstream
// parsing collaborator: an ordered list of named columns plus row values.
// The engine never parses raw file bytes itself.
type TabularData struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ProgressFunc reports batch-boundary progress of a long-running
// operation. It is strictly advisory; cancellation mid-batch is not
// supported.
type ProgressFunc func(processed, total int, message string)
