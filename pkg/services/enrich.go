package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/database"
	"github.com/tabula-hq/tabula-engine/pkg/jsonutil"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/repositories"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
	"github.com/tabula-hq/tabula-engine/pkg/standardize"
)

// derivedColumnTag joins a sanitized source column name to its
// standardization function name, e.g. "phone_enriched_phone_numbers".
const derivedColumnTag = "_enriched_"

// EnrichService creates derived datasets: structural copies of a source
// table extended with standardized columns.
type EnrichService interface {
	CreateDerived(ctx context.Context, sourceID uuid.UUID, name string, mapping map[string]string, progress models.ProgressFunc) (*models.DerivedDataset, error)
	GetDerived(ctx context.Context, id uuid.UUID) (*models.DerivedDataset, error)
	ListDerived(ctx context.Context, sourceID uuid.UUID) ([]*models.DerivedDataset, error)
}

type enrichService struct {
	db          *database.DB
	datasetRepo repositories.DatasetRepository
	derivedRepo repositories.DerivedRepository
	provisioner *schema.Provisioner
	batchSize   int
	logger      *zap.Logger
}

// NewEnrichService creates a new EnrichService.
func NewEnrichService(
	db *database.DB,
	datasetRepo repositories.DatasetRepository,
	derivedRepo repositories.DerivedRepository,
	provisioner *schema.Provisioner,
	batchSize int,
	logger *zap.Logger,
) EnrichService {
	return &enrichService{
		db:          db,
		datasetRepo: datasetRepo,
		derivedRepo: derivedRepo,
		provisioner: provisioner,
		batchSize:   batchSize,
		logger:      logger.Named("enrich-service"),
	}
}

var _ EnrichService = (*enrichService)(nil)

// CreateDerived copies the source table's structure, appends one TEXT
// column per mapping entry, bulk-copies the source rows, populates the
// derived columns and indexes them. Everything happens in one
// transaction, so a failure leaves no half-built table behind.
func (s *enrichService) CreateDerived(ctx context.Context, sourceID uuid.UUID, name string, mapping map[string]string, progress models.ProgressFunc) (*models.DerivedDataset, error) {
	source, err := s.datasetRepo.GetByID(ctx, s.db, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, apperrors.NotFound("source dataset not found", "id", sourceID.String())
	}

	specs, err := buildDerivedSpecs(source.Columns, mapping)
	if err != nil {
		return nil, err
	}

	tableName, err := s.freeDerivedTableName(ctx, source.TableName, sourceID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = tableName
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

	extra := make([]schema.Column, len(specs))
	for i, spec := range specs {
		extra[i] = schema.Column{Name: spec.DerivedColumn, DataType: "TEXT"}
	}
	if err = s.provisioner.CopyStructure(ctx, tx, source.TableName, tableName, extra); err != nil {
		return nil, err
	}

	copied, err := s.provisioner.CopyRows(ctx, tx, source.TableName, tableName)
	if err != nil {
		return nil, err
	}

	rows, err := fetchEnrichmentRows(ctx, tx, tableName, specs, nil)
	if err != nil {
		return nil, err
	}
	if err = writeDerivedValues(ctx, tx, tableName, specs, rows, s.batchSize, progress); err != nil {
		return nil, err
	}

	for _, spec := range specs {
		if err = s.provisioner.CreateIndex(ctx, tx, tableName, spec.DerivedColumn, true); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	derived := &models.DerivedDataset{
		ID:             uuid.New(),
		SourceID:       sourceID,
		Name:           name,
		TableName:      tableName,
		Columns:        source.Columns,
		Mapping:        mapping,
		DerivedColumns: derivedColumnNames(specs),
	}
	if err = s.derivedRepo.Create(ctx, tx, derived); err != nil {
		return nil, err
	}
	if err = s.derivedRepo.MarkSynced(ctx, tx, derived.ID, now); err != nil {
		return nil, err
	}
	derived.LastSyncedAt = now

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Created derived dataset",
		zap.String("source", source.Name),
		zap.String("table", tableName),
		zap.Int64("rows", copied),
		zap.Strings("derived_columns", derived.DerivedColumns))

	return derived, nil
}

func (s *enrichService) GetDerived(ctx context.Context, id uuid.UUID) (*models.DerivedDataset, error) {
	derived, err := s.derivedRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if derived == nil {
		return nil, apperrors.NotFound("derived dataset not found", "id", id.String())
	}
	return derived, nil
}

func (s *enrichService) ListDerived(ctx context.Context, sourceID uuid.UUID) ([]*models.DerivedDataset, error) {
	return s.derivedRepo.ListBySource(ctx, s.db, sourceID)
}

// freeDerivedTableName appends a version suffix to the source table name,
// starting after the highest version already registered and probing past
// any leftover tables.
func (s *enrichService) freeDerivedTableName(ctx context.Context, sourceTable string, sourceID uuid.UUID) (string, error) {
	existing, err := s.derivedRepo.ListBySource(ctx, s.db, sourceID)
	if err != nil {
		return "", err
	}

	for version := len(existing) + 1; ; version++ {
		candidate := fmt.Sprintf("%s_v%d", sourceTable, version)
		exists, err := s.provisioner.TableExists(ctx, s.db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

// derivedColumnSpec resolves one mapping entry: the source column to
// read, the standardization function to apply and the derived column to
// write.
type derivedColumnSpec struct {
	SourceColumn  string
	FuncName      string
	Function      standardize.Func
	DerivedColumn string
}

// buildDerivedSpecs validates an enrichment mapping against the source
// column map and resolves it into specs, ordered by source column name
// for deterministic table layout.
func buildDerivedSpecs(columns models.ColumnMap, mapping map[string]string) ([]derivedColumnSpec, error) {
	if len(mapping) == 0 {
		return nil, apperrors.Validation("enrichment mapping must not be empty", "mapping", "")
	}

	sourceColumns := make([]string, 0, len(mapping))
	for col := range mapping {
		sourceColumns = append(sourceColumns, col)
	}
	sort.Strings(sourceColumns)

	specs := make([]derivedColumnSpec, 0, len(mapping))
	seen := make(map[string]string, len(mapping))
	for _, col := range sourceColumns {
		funcName := mapping[col]
		if _, ok := columns.Get(col); !ok {
			return nil, apperrors.Validation("mapping references unknown source column", "column", col)
		}
		fn, ok := standardize.ByName(funcName)
		if !ok {
			return nil, apperrors.Validation(
				fmt.Sprintf("unknown standardization function (known: %s)", strings.Join(standardize.FunctionNames(), ", ")),
				"function", funcName)
		}

		derivedColumn := enginesql.Sanitize(col) + derivedColumnTag + funcName
		if prev, dup := seen[derivedColumn]; dup {
			return nil, apperrors.Validation(
				fmt.Sprintf("derived column collides with the one for %q", prev), "column", col)
		}
		seen[derivedColumn] = col

		specs = append(specs, derivedColumnSpec{
			SourceColumn:  col,
			FuncName:      funcName,
			Function:      fn,
			DerivedColumn: derivedColumn,
		})
	}

	return specs, nil
}

func derivedColumnNames(specs []derivedColumnSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.DerivedColumn
	}
	return names
}

// enrichmentRow is one row's identifier plus the source values the specs
// read, aligned with uniqueSourceColumns(specs).
type enrichmentRow struct {
	recordID string
	values   []any
}

// uniqueSourceColumns returns the distinct source columns the specs read,
// preserving spec order.
func uniqueSourceColumns(specs []derivedColumnSpec) []string {
	var cols []string
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if !seen[spec.SourceColumn] {
			seen[spec.SourceColumn] = true
			cols = append(cols, spec.SourceColumn)
		}
	}
	return cols
}

// fetchEnrichmentRows reads the identifier and mapped source columns from
// a table. With recordIDs nil it reads every row; otherwise only the
// listed rows.
func fetchEnrichmentRows(ctx context.Context, ex schema.Executor, table string, specs []derivedColumnSpec, recordIDs []string) ([]enrichmentRow, error) {
	sourceCols := uniqueSourceColumns(specs)
	quoted := make([]string, 0, len(sourceCols)+1)
	quoted = append(quoted, enginesql.Quote(enginesql.ReservedIdentifier))
	for _, col := range sourceCols {
		quoted = append(quoted, enginesql.Quote(col))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), enginesql.Quote(table))
	args := []any{}
	if recordIDs != nil {
		query += fmt.Sprintf(" WHERE %s = ANY($1)", enginesql.Quote(enginesql.ReservedIdentifier))
		args = append(args, recordIDs)
	}

	rows, err := ex.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Database(fmt.Sprintf("read enrichment source rows of %q", table), err)
	}
	defer rows.Close()

	var result []enrichmentRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperrors.Database("scan enrichment source row", err)
		}
		id, _ := values[0].(string)
		result = append(result, enrichmentRow{recordID: id, values: values[1:]})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("iterate enrichment source rows", err)
	}

	return result, nil
}

// writeDerivedValues computes and writes every spec's derived value for
// the given rows, batching the updates. Values that fail standardization
// stay NULL, keeping them out of the partial indexes.
func writeDerivedValues(ctx context.Context, tx pgx.Tx, table string, specs []derivedColumnSpec, rows []enrichmentRow, batchSize int, progress models.ProgressFunc) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	sourceIndex := make(map[string]int)
	for i, col := range uniqueSourceColumns(specs) {
		sourceIndex[col] = i
	}

	sets := make([]string, len(specs))
	for i, spec := range specs {
		sets[i] = fmt.Sprintf("%s = $%d", enginesql.Quote(spec.DerivedColumn), i+2)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1",
		enginesql.Quote(table), strings.Join(sets, ", "), enginesql.Quote(enginesql.ReservedIdentifier))

	total := len(rows)
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}

		batch := &pgx.Batch{}
		for _, row := range rows[start:end] {
			args := make([]any, 0, len(specs)+1)
			args = append(args, row.recordID)
			for _, spec := range specs {
				args = append(args, standardizeCell(spec.Function, row.values[sourceIndex[spec.SourceColumn]]))
			}
			batch.Queue(stmt, args...)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return apperrors.Database(fmt.Sprintf("write derived values to %q", table), err)
		}
		if progress != nil {
			progress(end, total, "standardized rows")
		}
	}

	return nil
}

// standardizeCell applies a standardization function to one source cell.
// Returns nil (SQL NULL) for empty cells and values the function rejects.
func standardizeCell(fn standardize.Func, v any) any {
	raw := jsonutil.CellString(v)
	if raw == "" {
		return nil
	}
	out, ok := fn(raw)
	if !ok {
		return nil
	}
	return out
}
