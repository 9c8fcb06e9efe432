package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/database"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/repositories"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// SyncService propagates rows added to a source dataset into its derived
// datasets. Sync is additive only: rows already in a derived table are
// never touched or removed.
type SyncService interface {
	Sync(ctx context.Context, derivedID uuid.UUID) (int, error)
	SyncAllForSource(ctx context.Context, sourceID uuid.UUID) ([]models.SyncOutcome, error)
}

type syncService struct {
	db          *database.DB
	datasetRepo repositories.DatasetRepository
	derivedRepo repositories.DerivedRepository
	provisioner *schema.Provisioner
	batchSize   int
	logger      *zap.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(
	db *database.DB,
	datasetRepo repositories.DatasetRepository,
	derivedRepo repositories.DerivedRepository,
	provisioner *schema.Provisioner,
	batchSize int,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		db:          db,
		datasetRepo: datasetRepo,
		derivedRepo: derivedRepo,
		provisioner: provisioner,
		batchSize:   batchSize,
		logger:      logger.Named("sync-service"),
	}
}

var _ SyncService = (*syncService)(nil)

// Sync copies source rows missing from the derived table (by row
// identifier), computes their derived values and stamps the sync time.
// Returns the number of rows added.
func (s *syncService) Sync(ctx context.Context, derivedID uuid.UUID) (int, error) {
	derived, err := s.derivedRepo.GetByID(ctx, s.db, derivedID)
	if err != nil {
		return 0, err
	}
	if derived == nil {
		return 0, apperrors.NotFound("derived dataset not found", "id", derivedID.String())
	}

	source, err := s.datasetRepo.GetByID(ctx, s.db, derived.SourceID)
	if err != nil {
		return 0, err
	}
	if source == nil {
		return 0, apperrors.NotFound("source dataset not found", "id", derived.SourceID.String())
	}

	specs, err := buildDerivedSpecs(source.Columns, derived.Mapping)
	if err != nil {
		return 0, err
	}
	if err := s.checkDrift(ctx, source, derived, specs); err != nil {
		return 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	newIDs, err := s.copyMissingRows(ctx, tx, source, derived.TableName)
	if err != nil {
		return 0, err
	}

	if len(newIDs) > 0 {
		var rows []enrichmentRow
		rows, err = fetchEnrichmentRows(ctx, tx, derived.TableName, specs, newIDs)
		if err != nil {
			return 0, err
		}
		if err = writeDerivedValues(ctx, tx, derived.TableName, specs, rows, s.batchSize, nil); err != nil {
			return 0, err
		}
		for _, spec := range specs {
			if err = s.provisioner.CreateIndex(ctx, tx, derived.TableName, spec.DerivedColumn, true); err != nil {
				return 0, err
			}
		}
	}

	if err = s.derivedRepo.MarkSynced(ctx, tx, derivedID, time.Now().UTC()); err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(newIDs) > 0 {
		s.logger.Info("Synced derived dataset",
			zap.String("derived", derived.Name),
			zap.String("table", derived.TableName),
			zap.Int("rows_added", len(newIDs)))
	}

	return len(newIDs), nil
}

// SyncAllForSource syncs every derived dataset of a source, continuing
// past individual failures and reporting a per-dataset outcome.
func (s *syncService) SyncAllForSource(ctx context.Context, sourceID uuid.UUID) ([]models.SyncOutcome, error) {
	deriveds, err := s.derivedRepo.ListBySource(ctx, s.db, sourceID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]models.SyncOutcome, 0, len(deriveds))
	for _, derived := range deriveds {
		outcome := models.SyncOutcome{DerivedDatasetID: derived.ID, Name: derived.Name}
		n, err := s.Sync(ctx, derived.ID)
		if err != nil {
			outcome.Err = err.Error()
			s.logger.Warn("Sync failed for derived dataset",
				zap.String("derived", derived.Name),
				zap.Error(err))
		} else {
			outcome.RowsSynced = n
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// checkDrift verifies the source table still carries every mapped column
// and the derived table every source and derived column. Drift means
// someone altered a table out of band; sync refuses rather than guessing.
func (s *syncService) checkDrift(ctx context.Context, source *models.DatasetDescriptor, derived *models.DerivedDataset, specs []derivedColumnSpec) error {
	sourceColumns, err := s.provisioner.TableColumns(ctx, s.db, source.TableName)
	if err != nil {
		return err
	}
	inSource := make(map[string]bool, len(sourceColumns))
	for _, c := range sourceColumns {
		inSource[c.Name] = true
	}

	var missing []string
	for _, name := range source.Columns.Names() {
		if !inSource[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.SchemaMismatch(
			fmt.Sprintf("source table is missing columns: %s", strings.Join(missing, ", ")),
			"table", source.TableName)
	}

	columns, err := s.provisioner.TableColumns(ctx, s.db, derived.TableName)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c.Name] = true
	}

	for _, name := range source.Columns.Names() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	for _, spec := range specs {
		if !present[spec.DerivedColumn] {
			missing = append(missing, spec.DerivedColumn)
		}
	}
	if len(missing) > 0 {
		return apperrors.SchemaMismatch(
			fmt.Sprintf("derived table is missing columns: %s", strings.Join(missing, ", ")),
			"table", derived.TableName)
	}

	return nil
}

// copyMissingRows inserts source rows absent from the target (by row
// identifier) and returns the identifiers it added.
func (s *syncService) copyMissingRows(ctx context.Context, tx pgx.Tx, source *models.DatasetDescriptor, targetTable string) ([]string, error) {
	names := append([]string{enginesql.ReservedIdentifier}, source.Columns.Names()...)
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = enginesql.Quote(name)
	}
	idCol := enginesql.Quote(enginesql.ReservedIdentifier)

	var selected []string
	for _, q := range quoted {
		selected = append(selected, "s."+q)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s s LEFT JOIN %s d ON s.%s = d.%s WHERE d.%s IS NULL",
		strings.Join(selected, ", "),
		enginesql.Quote(source.TableName), enginesql.Quote(targetTable),
		idCol, idCol, idCol)

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Database(fmt.Sprintf("select rows missing from %q", targetTable), err)
	}

	var newIDs []string
	var inserts [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, apperrors.Database("scan source row", err)
		}
		if id, ok := values[0].(string); ok {
			newIDs = append(newIDs, id)
		}
		inserts = append(inserts, values)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperrors.Database("iterate source rows", err)
	}
	rows.Close()

	if len(inserts) == 0 {
		return nil, nil
	}

	identifierColumns := make([]string, len(names))
	copy(identifierColumns, names)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{targetTable}, identifierColumns, pgx.CopyFromRows(inserts)); err != nil {
		return nil, apperrors.Database(fmt.Sprintf("copy rows into %q", targetTable), err)
	}

	return newIDs, nil
}
