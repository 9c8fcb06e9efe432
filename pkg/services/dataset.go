package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/database"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/repositories"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// datasetTablePrefix namespaces dynamically created dataset tables away
// from the engine_* metadata tables.
const datasetTablePrefix = "ds_"

// maxTableNameAttempts bounds the numeric-suffix search for a free
// backing table name when different dataset names sanitize to the same
// identifier.
const maxTableNameAttempts = 5

// DatasetService provisions and manages datasets and their backing tables.
type DatasetService interface {
	Provision(ctx context.Context, name string, slot int, columns models.ColumnMap) (*models.DatasetDescriptor, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DatasetDescriptor, error)
	GetByName(ctx context.Context, name string) (*models.DatasetDescriptor, error)
	List(ctx context.Context) ([]*models.DatasetDescriptor, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type datasetService struct {
	db          *database.DB
	datasetRepo repositories.DatasetRepository
	uploadRepo  repositories.UploadRepository
	derivedRepo repositories.DerivedRepository
	provisioner *schema.Provisioner
	logger      *zap.Logger
}

// NewDatasetService creates a new DatasetService.
func NewDatasetService(
	db *database.DB,
	datasetRepo repositories.DatasetRepository,
	uploadRepo repositories.UploadRepository,
	derivedRepo repositories.DerivedRepository,
	provisioner *schema.Provisioner,
	logger *zap.Logger,
) DatasetService {
	return &datasetService{
		db:          db,
		datasetRepo: datasetRepo,
		uploadRepo:  uploadRepo,
		derivedRepo: derivedRepo,
		provisioner: provisioner,
		logger:      logger.Named("dataset-service"),
	}
}

var _ DatasetService = (*datasetService)(nil)

// Provision creates a dataset descriptor and its backing table in one
// transaction. The backing table's first column is always the generated
// row identifier; the remaining columns follow the column map in declared
// order.
func (s *datasetService) Provision(ctx context.Context, name string, slot int, columns models.ColumnMap) (*models.DatasetDescriptor, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.Validation("dataset name is required", "name", name)
	}
	if slot < 1 || slot > models.MaxSlot {
		return nil, apperrors.Validation(
			fmt.Sprintf("slot must be between 1 and %d", models.MaxSlot), "slot", fmt.Sprintf("%d", slot))
	}

	normalized, dropped, err := columns.Validate()
	if err != nil {
		return nil, err
	}
	for _, d := range dropped {
		s.logger.Warn("Dropping reserved column from column map",
			zap.String("dataset", name),
			zap.String("column", d))
	}
	if len(normalized) == 0 {
		return nil, apperrors.Validation("column map must declare at least one usable column", "columns", "")
	}

	if existing, err := s.datasetRepo.GetByName(ctx, s.db, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperrors.Conflict("dataset name already in use", "name", name)
	}
	if existing, err := s.datasetRepo.GetBySlot(ctx, s.db, slot); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperrors.Conflict("slot already occupied", "slot", fmt.Sprintf("%d", slot))
	}

	tableName, err := s.freeTableName(ctx, name)
	if err != nil {
		return nil, err
	}

	dataset := &models.DatasetDescriptor{
		ID:            uuid.New(),
		Name:          name,
		Slot:          slot,
		TableName:     tableName,
		Columns:       normalized,
		BinaryColumns: normalized.BinaryColumns(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = s.provisioner.CreateTable(ctx, tx, tableName, normalized); err != nil {
		return nil, err
	}
	if err = s.datasetRepo.Create(ctx, tx, dataset); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Provisioned dataset",
		zap.String("dataset", name),
		zap.Int("slot", slot),
		zap.String("table", tableName),
		zap.Int("columns", len(normalized)))

	return dataset, nil
}

func (s *datasetService) Get(ctx context.Context, id uuid.UUID) (*models.DatasetDescriptor, error) {
	dataset, err := s.datasetRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, apperrors.NotFound("dataset not found", "id", id.String())
	}
	return dataset, nil
}

func (s *datasetService) GetByName(ctx context.Context, name string) (*models.DatasetDescriptor, error) {
	dataset, err := s.datasetRepo.GetByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, apperrors.NotFound("dataset not found", "name", name)
	}
	return dataset, nil
}

func (s *datasetService) List(ctx context.Context) ([]*models.DatasetDescriptor, error) {
	return s.datasetRepo.List(ctx, s.db)
}

// Delete removes a dataset and everything hanging off it in one
// transaction, in dependency order: derived tables and their descriptors
// first, then upload history, then the backing table, then the dataset
// descriptor itself.
func (s *datasetService) Delete(ctx context.Context, id uuid.UUID) error {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	deriveds, err := s.derivedRepo.ListBySource(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, derived := range deriveds {
		if err = s.provisioner.DropTable(ctx, tx, derived.TableName); err != nil {
			return err
		}
		if err = s.derivedRepo.Delete(ctx, tx, derived.ID); err != nil {
			return err
		}
	}

	if err = s.uploadRepo.DeleteByDataset(ctx, tx, id); err != nil {
		return err
	}
	if err = s.provisioner.DropTable(ctx, tx, dataset.TableName); err != nil {
		return err
	}
	if err = s.datasetRepo.Delete(ctx, tx, id); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Deleted dataset",
		zap.String("dataset", dataset.Name),
		zap.String("table", dataset.TableName),
		zap.Int("derived_datasets", len(deriveds)))

	return nil
}

// freeTableName derives the backing table name from the dataset name and
// scans for an unused variant when distinct names sanitize identically.
func (s *datasetService) freeTableName(ctx context.Context, name string) (string, error) {
	base := datasetTablePrefix + inflection.Plural(enginesql.Sanitize(strings.ToLower(name)))

	candidate := base
	for attempt := 2; attempt <= maxTableNameAttempts+1; attempt++ {
		exists, err := s.provisioner.TableExists(ctx, s.db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, attempt)
	}

	return "", apperrors.Conflict("could not find a free backing table name", "table", base)
}
