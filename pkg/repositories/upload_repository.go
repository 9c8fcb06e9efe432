package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
)

// UploadRepository provides data access for per-dataset upload history.
type UploadRepository interface {
	Create(ctx context.Context, ex schema.Executor, upload *models.UploadRecord) error
	GetByFilename(ctx context.Context, ex schema.Executor, datasetID uuid.UUID, filename string) (*models.UploadRecord, error)
	ListByDataset(ctx context.Context, ex schema.Executor, datasetID uuid.UUID) ([]*models.UploadRecord, error)
	DeleteByFilename(ctx context.Context, ex schema.Executor, datasetID uuid.UUID, filename string) error
	DeleteByDataset(ctx context.Context, ex schema.Executor, datasetID uuid.UUID) error
}

type uploadRepository struct{}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository() UploadRepository {
	return &uploadRepository{}
}

var _ UploadRepository = (*uploadRepository)(nil)

func (r *uploadRepository) Create(ctx context.Context, ex schema.Executor, upload *models.UploadRecord) error {
	query := `
		INSERT INTO engine_uploads (id, dataset_id, filename, row_count, file_kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := ex.QueryRow(ctx, query,
		upload.ID,
		upload.DatasetID,
		upload.Filename,
		upload.RowCount,
		upload.FileKind,
	).Scan(&upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload record: %w", err)
	}

	return nil
}

func (r *uploadRepository) GetByFilename(ctx context.Context, ex schema.Executor, datasetID uuid.UUID, filename string) (*models.UploadRecord, error) {
	query := `
		SELECT id, dataset_id, filename, row_count, file_kind, created_at
		FROM engine_uploads
		WHERE dataset_id = $1 AND filename = $2`

	upload, err := scanUpload(ex.QueryRow(ctx, query, datasetID, filename))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return upload, nil
}

func (r *uploadRepository) ListByDataset(ctx context.Context, ex schema.Executor, datasetID uuid.UUID) ([]*models.UploadRecord, error) {
	query := `
		SELECT id, dataset_id, filename, row_count, file_kind, created_at
		FROM engine_uploads
		WHERE dataset_id = $1
		ORDER BY created_at`

	rows, err := ex.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload records: %w", err)
	}
	defer rows.Close()

	var uploads []*models.UploadRecord
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upload records: %w", err)
	}

	return uploads, nil
}

func (r *uploadRepository) DeleteByFilename(ctx context.Context, ex schema.Executor, datasetID uuid.UUID, filename string) error {
	query := `DELETE FROM engine_uploads WHERE dataset_id = $1 AND filename = $2`

	if _, err := ex.Exec(ctx, query, datasetID, filename); err != nil {
		return fmt.Errorf("failed to delete upload record: %w", err)
	}
	return nil
}

func (r *uploadRepository) DeleteByDataset(ctx context.Context, ex schema.Executor, datasetID uuid.UUID) error {
	query := `DELETE FROM engine_uploads WHERE dataset_id = $1`

	if _, err := ex.Exec(ctx, query, datasetID); err != nil {
		return fmt.Errorf("failed to delete upload records: %w", err)
	}
	return nil
}

func scanUpload(row pgx.Row) (*models.UploadRecord, error) {
	var u models.UploadRecord
	err := row.Scan(
		&u.ID,
		&u.DatasetID,
		&u.Filename,
		&u.RowCount,
		&u.FileKind,
		&u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan upload record: %w", err)
	}
	return &u, nil
}
