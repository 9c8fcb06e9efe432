package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
)

// DerivedRepository provides data access for derived dataset descriptors.
type DerivedRepository interface {
	Create(ctx context.Context, ex schema.Executor, derived *models.DerivedDataset) error
	GetByID(ctx context.Context, ex schema.Executor, id uuid.UUID) (*models.DerivedDataset, error)
	ListBySource(ctx context.Context, ex schema.Executor, sourceID uuid.UUID) ([]*models.DerivedDataset, error)
	ListAll(ctx context.Context, ex schema.Executor) ([]*models.DerivedDataset, error)
	MarkSynced(ctx context.Context, ex schema.Executor, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, ex schema.Executor, id uuid.UUID) error
}

type derivedRepository struct{}

// NewDerivedRepository creates a new DerivedRepository.
func NewDerivedRepository() DerivedRepository {
	return &derivedRepository{}
}

var _ DerivedRepository = (*derivedRepository)(nil)

const derivedColumns = `id, source_id, name, table_name, columns, mapping, derived_columns, last_synced_at, created_at`

func (r *derivedRepository) Create(ctx context.Context, ex schema.Executor, derived *models.DerivedDataset) error {
	columnsJSON, err := json.Marshal(derived.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal column map: %w", err)
	}
	mappingJSON, err := json.Marshal(derived.Mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal enrichment mapping: %w", err)
	}

	query := `
		INSERT INTO engine_derived_datasets (id, source_id, name, table_name, columns, mapping, derived_columns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err = ex.QueryRow(ctx, query,
		derived.ID,
		derived.SourceID,
		derived.Name,
		derived.TableName,
		columnsJSON,
		mappingJSON,
		derived.DerivedColumns,
	).Scan(&derived.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create derived dataset descriptor: %w", err)
	}

	return nil
}

func (r *derivedRepository) GetByID(ctx context.Context, ex schema.Executor, id uuid.UUID) (*models.DerivedDataset, error) {
	query := `SELECT ` + derivedColumns + ` FROM engine_derived_datasets WHERE id = $1`

	derived, err := scanDerived(ex.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return derived, nil
}

func (r *derivedRepository) ListBySource(ctx context.Context, ex schema.Executor, sourceID uuid.UUID) ([]*models.DerivedDataset, error) {
	query := `SELECT ` + derivedColumns + ` FROM engine_derived_datasets WHERE source_id = $1 ORDER BY created_at`

	return r.list(ctx, ex, query, sourceID)
}

func (r *derivedRepository) ListAll(ctx context.Context, ex schema.Executor) ([]*models.DerivedDataset, error) {
	query := `SELECT ` + derivedColumns + ` FROM engine_derived_datasets ORDER BY created_at`

	return r.list(ctx, ex, query)
}

func (r *derivedRepository) list(ctx context.Context, ex schema.Executor, query string, args ...any) ([]*models.DerivedDataset, error) {
	rows, err := ex.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query derived datasets: %w", err)
	}
	defer rows.Close()

	var deriveds []*models.DerivedDataset
	for rows.Next() {
		derived, err := scanDerived(rows)
		if err != nil {
			return nil, err
		}
		deriveds = append(deriveds, derived)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating derived datasets: %w", err)
	}

	return deriveds, nil
}

func (r *derivedRepository) MarkSynced(ctx context.Context, ex schema.Executor, id uuid.UUID, at time.Time) error {
	query := `UPDATE engine_derived_datasets SET last_synced_at = $2 WHERE id = $1`

	result, err := ex.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark derived dataset synced: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *derivedRepository) Delete(ctx context.Context, ex schema.Executor, id uuid.UUID) error {
	query := `DELETE FROM engine_derived_datasets WHERE id = $1`

	result, err := ex.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete derived dataset descriptor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanDerived(row pgx.Row) (*models.DerivedDataset, error) {
	var d models.DerivedDataset
	var columnsJSON, mappingJSON []byte
	var lastSyncedAt *time.Time

	err := row.Scan(
		&d.ID,
		&d.SourceID,
		&d.Name,
		&d.TableName,
		&columnsJSON,
		&mappingJSON,
		&d.DerivedColumns,
		&lastSyncedAt,
		&d.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan derived dataset descriptor: %w", err)
	}

	if err := json.Unmarshal(columnsJSON, &d.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column map: %w", err)
	}
	if err := json.Unmarshal(mappingJSON, &d.Mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enrichment mapping: %w", err)
	}
	if lastSyncedAt != nil {
		d.LastSyncedAt = *lastSyncedAt
	}

	return &d, nil
}
