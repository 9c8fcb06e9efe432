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

// RegistryRepository provides data access for knowledge registry descriptors.
type RegistryRepository interface {
	Create(ctx context.Context, ex schema.Executor, registry *models.KnowledgeRegistry) error
	GetByID(ctx context.Context, ex schema.Executor, id uuid.UUID) (*models.KnowledgeRegistry, error)
	GetByName(ctx context.Context, ex schema.Executor, name string) (*models.KnowledgeRegistry, error)
	ListByCategory(ctx context.Context, ex schema.Executor, category models.Category) ([]*models.KnowledgeRegistry, error)
	List(ctx context.Context, ex schema.Executor) ([]*models.KnowledgeRegistry, error)
	Touch(ctx context.Context, ex schema.Executor, id uuid.UUID) error
	Delete(ctx context.Context, ex schema.Executor, id uuid.UUID) error
}

type registryRepository struct{}

// NewRegistryRepository creates a new RegistryRepository.
func NewRegistryRepository() RegistryRepository {
	return &registryRepository{}
}

var _ RegistryRepository = (*registryRepository)(nil)

const registryColumns = `id, name, category, primary_column, table_name, key_column, columns, created_at, updated_at`

func (r *registryRepository) Create(ctx context.Context, ex schema.Executor, registry *models.KnowledgeRegistry) error {
	columnsJSON, err := json.Marshal(registry.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal column map: %w", err)
	}

	query := `
		INSERT INTO engine_registries (id, name, category, primary_column, table_name, key_column, columns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = ex.QueryRow(ctx, query,
		registry.ID,
		registry.Name,
		string(registry.Category),
		registry.PrimaryColumn,
		registry.TableName,
		registry.KeyColumn,
		columnsJSON,
	).Scan(&registry.CreatedAt, &registry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create registry descriptor: %w", err)
	}

	return nil
}

func (r *registryRepository) GetByID(ctx context.Context, ex schema.Executor, id uuid.UUID) (*models.KnowledgeRegistry, error) {
	query := `SELECT ` + registryColumns + ` FROM engine_registries WHERE id = $1`

	registry, err := scanRegistry(ex.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return registry, nil
}

func (r *registryRepository) GetByName(ctx context.Context, ex schema.Executor, name string) (*models.KnowledgeRegistry, error) {
	query := `SELECT ` + registryColumns + ` FROM engine_registries WHERE name = $1`

	registry, err := scanRegistry(ex.QueryRow(ctx, query, name))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return registry, nil
}

func (r *registryRepository) ListByCategory(ctx context.Context, ex schema.Executor, category models.Category) ([]*models.KnowledgeRegistry, error) {
	query := `SELECT ` + registryColumns + ` FROM engine_registries WHERE category = $1 ORDER BY name`

	return r.list(ctx, ex, query, string(category))
}

func (r *registryRepository) List(ctx context.Context, ex schema.Executor) ([]*models.KnowledgeRegistry, error) {
	query := `SELECT ` + registryColumns + ` FROM engine_registries ORDER BY category, name`

	return r.list(ctx, ex, query)
}

func (r *registryRepository) list(ctx context.Context, ex schema.Executor, query string, args ...any) ([]*models.KnowledgeRegistry, error) {
	rows, err := ex.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registries: %w", err)
	}
	defer rows.Close()

	var registries []*models.KnowledgeRegistry
	for rows.Next() {
		registry, err := scanRegistry(rows)
		if err != nil {
			return nil, err
		}
		registries = append(registries, registry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registries: %w", err)
	}

	return registries, nil
}

// Touch bumps updated_at. Called after every upload attempt against the
// registry, even when all rows were skipped.
func (r *registryRepository) Touch(ctx context.Context, ex schema.Executor, id uuid.UUID) error {
	query := `UPDATE engine_registries SET updated_at = now() WHERE id = $1`

	result, err := ex.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch registry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *registryRepository) Delete(ctx context.Context, ex schema.Executor, id uuid.UUID) error {
	query := `DELETE FROM engine_registries WHERE id = $1`

	result, err := ex.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete registry descriptor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanRegistry(row pgx.Row) (*models.KnowledgeRegistry, error) {
	var reg models.KnowledgeRegistry
	var category string
	var columnsJSON []byte

	err := row.Scan(
		&reg.ID,
		&reg.Name,
		&category,
		&reg.PrimaryColumn,
		&reg.TableName,
		&reg.KeyColumn,
		&columnsJSON,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan registry descriptor: %w", err)
	}

	reg.Category = models.Category(category)
	if err := json.Unmarshal(columnsJSON, &reg.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column map: %w", err)
	}

	return &reg, nil
}
