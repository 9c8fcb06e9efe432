package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
)

// DatasetRepository provides data access for dataset descriptors.
type DatasetRepository interface {
	Create(ctx context.Context, ex schema.Executor, dataset *models.DatasetDescriptor) error
	GetByID(ctx context.Context, ex schema.Executor, id uuid.UUID) (*models.DatasetDescriptor, error)
	GetByName(ctx context.Context, ex schema.Executor, name string) (*models.DatasetDescriptor, error)
	GetBySlot(ctx context.Context, ex schema.Executor, slot int) (*models.DatasetDescriptor, error)
	List(ctx context.Context, ex schema.Executor) ([]*models.DatasetDescriptor, error)
	Touch(ctx context.Context, ex schema.Executor, id uuid.UUID) error
	Delete(ctx context.Context, ex schema.Executor, id uuid.UUID) error
}

type datasetRepository struct{}

// NewDatasetRepository creates a new DatasetRepository.
func NewDatasetRepository() DatasetRepository {
	return &datasetRepository{}
}

var _ DatasetRepository = (*datasetRepository)(nil)

const datasetColumns = `id, name, slot, table_name, columns, binary_columns, created_at, updated_at`

func (r *datasetRepository) Create(ctx context.Context, ex schema.Executor, dataset *models.DatasetDescriptor) error {
	columnsJSON, err := json.Marshal(dataset.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal column map: %w", err)
	}

	query := `
		INSERT INTO engine_datasets (id, name, slot, table_name, columns, binary_columns)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err = ex.QueryRow(ctx, query,
		dataset.ID,
		dataset.Name,
		dataset.Slot,
		dataset.TableName,
		columnsJSON,
		dataset.BinaryColumns,
	).Scan(&dataset.CreatedAt, &dataset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dataset descriptor: %w", err)
	}

	return nil
}

func (r *datasetRepository) GetByID(ctx context.Context, ex schema.Executor, id uuid.UUID) (*models.DatasetDescriptor, error) {
	query := `SELECT ` + datasetColumns + ` FROM engine_datasets WHERE id = $1`

	dataset, err := scanDataset(ex.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return dataset, nil
}

func (r *datasetRepository) GetByName(ctx context.Context, ex schema.Executor, name string) (*models.DatasetDescriptor, error) {
	query := `SELECT ` + datasetColumns + ` FROM engine_datasets WHERE name = $1`

	dataset, err := scanDataset(ex.QueryRow(ctx, query, name))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return dataset, nil
}

func (r *datasetRepository) GetBySlot(ctx context.Context, ex schema.Executor, slot int) (*models.DatasetDescriptor, error) {
	query := `SELECT ` + datasetColumns + ` FROM engine_datasets WHERE slot = $1`

	dataset, err := scanDataset(ex.QueryRow(ctx, query, slot))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return dataset, nil
}

func (r *datasetRepository) List(ctx context.Context, ex schema.Executor) ([]*models.DatasetDescriptor, error) {
	query := `SELECT ` + datasetColumns + ` FROM engine_datasets ORDER BY slot`

	rows, err := ex.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.DatasetDescriptor
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}

	return datasets, nil
}

// Touch bumps updated_at, marking data-affecting activity on the dataset.
func (r *datasetRepository) Touch(ctx context.Context, ex schema.Executor, id uuid.UUID) error {
	query := `UPDATE engine_datasets SET updated_at = now() WHERE id = $1`

	result, err := ex.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch dataset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasetRepository) Delete(ctx context.Context, ex schema.Executor, id uuid.UUID) error {
	query := `DELETE FROM engine_datasets WHERE id = $1`

	result, err := ex.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset descriptor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanDataset(row pgx.Row) (*models.DatasetDescriptor, error) {
	var d models.DatasetDescriptor
	var columnsJSON []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Slot,
		&d.TableName,
		&columnsJSON,
		&d.BinaryColumns,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset descriptor: %w", err)
	}

	if err := json.Unmarshal(columnsJSON, &d.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column map: %w", err)
	}

	return &d, nil
}
