package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/database"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/repositories"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// SearchService answers "where does this value appear" in two phases:
// cheap indexed presence counts across every source first, bounded row
// fetches from a chosen source second.
type SearchService interface {
	SearchPresence(ctx context.Context, value string, category models.Category, registryFilter string) (*models.PresenceResult, error)
	FetchRegistryRows(ctx context.Context, registryID uuid.UUID, value string, limit int) (*models.RowsResult, error)
	FetchDerivedRows(ctx context.Context, derivedID uuid.UUID, derivedColumn, value string, limit int) (*models.RowsResult, error)
}

type searchService struct {
	db           *database.DB
	registryRepo repositories.RegistryRepository
	derivedRepo  repositories.DerivedRepository
	datasetRepo  repositories.DatasetRepository
	rowLimit     int
	logger       *zap.Logger
}

// NewSearchService creates a new SearchService. rowLimit caps phase-2
// fetches regardless of the caller's limit.
func NewSearchService(
	db *database.DB,
	registryRepo repositories.RegistryRepository,
	derivedRepo repositories.DerivedRepository,
	datasetRepo repositories.DatasetRepository,
	rowLimit int,
	logger *zap.Logger,
) SearchService {
	return &searchService{
		db:           db,
		registryRepo: registryRepo,
		derivedRepo:  derivedRepo,
		datasetRepo:  datasetRepo,
		rowLimit:     rowLimit,
		logger:       logger.Named("search-service"),
	}
}

var _ SearchService = (*searchService)(nil)

// SearchPresence standardizes the submitted value with the category's
// function and counts its occurrences in every registry of the category
// (optionally narrowed to one registry by name) and every derived column
// produced by the matching standardization function. Counts only; row
// content never leaves the store in phase 1. A value the category cannot
// standardize yields an empty zero-match result, not an error.
func (s *searchService) SearchPresence(ctx context.Context, value string, category models.Category, registryFilter string) (*models.PresenceResult, error) {
	fn, ok := category.Func()
	if !ok {
		return nil, apperrors.Validation("unknown search category", "category", string(category))
	}

	start := time.Now()
	result := &models.PresenceResult{Category: category}

	key, ok := fn(value)
	if !ok {
		result.Elapsed = time.Since(start)
		return result, nil
	}
	result.Key = key

	registries, err := s.registryRepo.ListByCategory(ctx, s.db, category)
	if err != nil {
		return nil, err
	}
	for _, registry := range registries {
		if registryFilter != "" && registry.Name != registryFilter {
			continue
		}
		count, err := s.countMatches(ctx, registry.TableName, registry.KeyColumn, key)
		if err != nil {
			return nil, err
		}
		result.Registries = append(result.Registries, models.RegistryMatch{
			RegistryID: registry.ID,
			Name:       registry.Name,
			RowCount:   count,
			HasData:    count > 0,
		})
		result.SourcesConsidered++
		if count > 0 {
			result.MatchedSources++
		}
	}

	deriveds, err := s.derivedRepo.ListAll(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, derived := range deriveds {
		for _, spec := range specsForCategory(derived.Mapping, category) {
			count, err := s.countMatches(ctx, derived.TableName, spec.DerivedColumn, key)
			if err != nil {
				return nil, err
			}
			result.DerivedColumns = append(result.DerivedColumns, models.DerivedColumnMatch{
				DatasetID:        derived.SourceID,
				DerivedDatasetID: derived.ID,
				Name:             derived.Name,
				DerivedTable:     derived.TableName,
				SourceColumn:     spec.SourceColumn,
				DerivedColumn:    spec.DerivedColumn,
				RowCount:         count,
			})
			result.SourcesConsidered++
			if count > 0 {
				result.MatchedSources++
			}
		}
	}

	result.Elapsed = time.Since(start)

	s.logger.Debug("Presence search finished",
		zap.String("category", string(category)),
		zap.Int("sources_considered", result.SourcesConsidered),
		zap.Int("matched_sources", result.MatchedSources),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// FetchRegistryRows returns the registry rows whose canonical key equals
// the standardized search value, bounded by the service row limit.
func (s *searchService) FetchRegistryRows(ctx context.Context, registryID uuid.UUID, value string, limit int) (*models.RowsResult, error) {
	registry, err := s.registryRepo.GetByID(ctx, s.db, registryID)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, apperrors.NotFound("registry not found", "id", registryID.String())
	}

	fn, ok := registry.Category.Func()
	if !ok {
		return nil, apperrors.Configuration("registry category has no standardization function", "category", string(registry.Category))
	}
	key, ok := fn(value)
	if !ok {
		return &models.RowsResult{}, nil
	}

	return s.fetchRows(ctx, registry.TableName, registry.KeyColumn, key, limit)
}

// FetchDerivedRows returns derived table rows whose named derived column
// equals the standardized search value. The column must be one the derived
// dataset actually produced.
func (s *searchService) FetchDerivedRows(ctx context.Context, derivedID uuid.UUID, derivedColumn, value string, limit int) (*models.RowsResult, error) {
	derived, err := s.derivedRepo.GetByID(ctx, s.db, derivedID)
	if err != nil {
		return nil, err
	}
	if derived == nil {
		return nil, apperrors.NotFound("derived dataset not found", "id", derivedID.String())
	}

	var spec *derivedColumnSpec
	for _, candidate := range specsForMapping(derived.Mapping) {
		if candidate.DerivedColumn == derivedColumn {
			c := candidate
			spec = &c
			break
		}
	}
	if spec == nil {
		return nil, apperrors.Validation("column is not a derived column of this dataset", "column", derivedColumn)
	}

	key, ok := spec.Function(value)
	if !ok {
		return &models.RowsResult{}, nil
	}

	return s.fetchRows(ctx, derived.TableName, derivedColumn, key, limit)
}

func (s *searchService) countMatches(ctx context.Context, table, column, key string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1",
		enginesql.Quote(table), enginesql.Quote(column))

	var count int64
	if err := s.db.QueryRow(ctx, query, key).Scan(&count); err != nil {
		return 0, apperrors.Database(fmt.Sprintf("count matches in %q", table), err)
	}
	return count, nil
}

func (s *searchService) fetchRows(ctx context.Context, table, column, key string, limit int) (*models.RowsResult, error) {
	if limit <= 0 || limit > s.rowLimit {
		limit = s.rowLimit
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 LIMIT $2",
		enginesql.Quote(table), enginesql.Quote(column))

	rows, err := s.db.Query(ctx, query, key, limit)
	if err != nil {
		return nil, apperrors.Database(fmt.Sprintf("fetch rows from %q", table), err)
	}
	defer rows.Close()

	result := &models.RowsResult{}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperrors.Database("scan result row", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("iterate result rows", err)
	}

	return result, nil
}

// specsForMapping resolves a stored mapping without a source column map;
// stored mappings were validated at creation time.
func specsForMapping(mapping map[string]string) []derivedColumnSpec {
	columns := make(models.ColumnMap, 0, len(mapping))
	for col := range mapping {
		columns = append(columns, models.ColumnSpec{Name: col, Type: models.TypeText})
	}
	specs, err := buildDerivedSpecs(columns, mapping)
	if err != nil {
		return nil
	}
	return specs
}

// specsForCategory filters a mapping's specs to those produced by the
// category's standardization function.
func specsForCategory(mapping map[string]string, category models.Category) []derivedColumnSpec {
	var out []derivedColumnSpec
	for _, spec := range specsForMapping(mapping) {
		if spec.FuncName == string(category) {
			out = append(out, spec)
		}
	}
	return out
}

