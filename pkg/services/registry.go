package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/database"
	"github.com/tabula-hq/tabula-engine/pkg/jsonutil"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	"github.com/tabula-hq/tabula-engine/pkg/repositories"
	"github.com/tabula-hq/tabula-engine/pkg/retry"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// registryTablePrefix namespaces registry tables away from dataset tables
// and engine metadata.
const registryTablePrefix = "reg_"

// RegistryService manages knowledge registries: category-scoped tables
// holding one row per canonical standardized key.
type RegistryService interface {
	Register(ctx context.Context, name string, category models.Category, primaryColumn string, columns models.ColumnMap, initial *models.TabularData) (*models.KnowledgeRegistry, *models.UploadReport, error)
	Get(ctx context.Context, id uuid.UUID) (*models.KnowledgeRegistry, error)
	List(ctx context.Context) ([]*models.KnowledgeRegistry, error)
	Upload(ctx context.Context, registryID uuid.UUID, data models.TabularData) (*models.UploadReport, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type registryService struct {
	db           *database.DB
	registryRepo repositories.RegistryRepository
	provisioner  *schema.Provisioner
	logger       *zap.Logger
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(
	db *database.DB,
	registryRepo repositories.RegistryRepository,
	provisioner *schema.Provisioner,
	logger *zap.Logger,
) RegistryService {
	return &registryService{
		db:           db,
		registryRepo: registryRepo,
		provisioner:  provisioner,
		logger:       logger.Named("registry-service"),
	}
}

var _ RegistryService = (*registryService)(nil)

// Register creates a registry descriptor and its keyed table, then loads
// the initial rows when given. The table name carries a random suffix; on
// the rare collision the whole creation is retried with a fresh suffix.
// If the initial upload fails, the freshly created table and descriptor
// are removed before the error is returned.
func (s *registryService) Register(ctx context.Context, name string, category models.Category, primaryColumn string, columns models.ColumnMap, initial *models.TabularData) (*models.KnowledgeRegistry, *models.UploadReport, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, apperrors.Validation("registry name is required", "name", name)
	}
	if !category.IsValid() {
		return nil, nil, apperrors.Validation("unknown registry category", "category", string(category))
	}
	if strings.TrimSpace(primaryColumn) == "" {
		return nil, nil, apperrors.Validation("primary column is required", "primary_column", primaryColumn)
	}

	// Payload columns are optional; a registry can store bare keys.
	var normalized models.ColumnMap
	if len(columns) > 0 {
		var dropped []string
		var err error
		normalized, dropped, err = columns.Validate()
		if err != nil {
			return nil, nil, err
		}
		for _, d := range dropped {
			s.logger.Warn("Dropping reserved column from registry column map",
				zap.String("registry", name),
				zap.String("column", d))
		}
		if _, ok := normalized.Get(primaryColumn); !ok {
			return nil, nil, apperrors.Validation("primary column is not declared in the column map", "primary_column", primaryColumn)
		}
	}

	if existing, err := s.registryRepo.GetByName(ctx, s.db, name); err != nil {
		return nil, nil, err
	} else if existing != nil {
		return nil, nil, apperrors.Conflict("registry name already exists", "name", name)
	}

	var registry *models.KnowledgeRegistry
	err := retry.DoIfRetryable(ctx, retry.NameCollisionConfig(), func() error {
		tableName := s.newTableName(name)

		tx, txErr := s.db.Begin(ctx)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if txErr = s.provisioner.CreateKeyedTable(ctx, tx, tableName, models.KeyColumn, normalized); txErr != nil {
			return txErr
		}

		candidate := &models.KnowledgeRegistry{
			ID:            uuid.New(),
			Name:          name,
			Category:      category,
			PrimaryColumn: primaryColumn,
			TableName:     tableName,
			KeyColumn:     models.KeyColumn,
			Columns:       normalized,
		}
		if txErr = s.registryRepo.Create(ctx, tx, candidate); txErr != nil {
			return txErr
		}
		if txErr = tx.Commit(ctx); txErr != nil {
			return fmt.Errorf("failed to commit transaction: %w", txErr)
		}

		registry = candidate
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Registered knowledge registry",
		zap.String("registry", name),
		zap.String("category", string(category)),
		zap.String("table", registry.TableName))

	var report *models.UploadReport
	if initial != nil {
		report, err = s.Upload(ctx, registry.ID, *initial)
		if err != nil {
			if cleanupErr := s.Delete(ctx, registry.ID); cleanupErr != nil {
				s.logger.Warn("Failed to remove registry after initial upload failure",
					zap.String("registry", name),
					zap.Error(cleanupErr))
			}
			return nil, nil, err
		}
	}

	return registry, report, nil
}

func (s *registryService) Get(ctx context.Context, id uuid.UUID) (*models.KnowledgeRegistry, error) {
	registry, err := s.registryRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, apperrors.NotFound("registry not found", "id", id.String())
	}
	return registry, nil
}

func (s *registryService) List(ctx context.Context) ([]*models.KnowledgeRegistry, error) {
	return s.registryRepo.List(ctx, s.db)
}

// Upload standardizes the registry's primary column of every row and
// stores one row per previously-unseen canonical key. Rows that fail
// standardization or repeat a key (within the upload or against the
// store) are skipped and itemized in the report. The registry's
// updated_at is bumped even when every row was skipped.
func (s *registryService) Upload(ctx context.Context, registryID uuid.UUID, data models.TabularData) (*models.UploadReport, error) {
	registry, err := s.Get(ctx, registryID)
	if err != nil {
		return nil, err
	}
	fn, ok := registry.Category.Func()
	if !ok {
		return nil, apperrors.Configuration("registry category has no standardization function", "category", string(registry.Category))
	}

	primaryIdx := -1
	for i, col := range data.Columns {
		if col == registry.PrimaryColumn {
			primaryIdx = i
			break
		}
	}
	if primaryIdx < 0 {
		return nil, apperrors.Validation("upload does not carry the registry's primary column", "column", registry.PrimaryColumn)
	}

	// Every declared payload column must arrive with the upload.
	type payloadColumn struct {
		name string
		typ  models.ColumnType
		idx  int
	}
	var payload []payloadColumn
	for _, spec := range registry.Columns {
		idx := -1
		for i, col := range data.Columns {
			if col == spec.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, apperrors.Validation("upload is missing a declared registry column", "column", spec.Name)
		}
		payload = append(payload, payloadColumn{name: spec.Name, typ: spec.Type, idx: idx})
	}

	type pendingInsert struct {
		rowIndex int
		key      string
		values   []any
	}

	report := &models.UploadReport{Total: len(data.Rows)}
	seen := make(map[string]bool, len(data.Rows))
	var pending []pendingInsert
	var candidateKeys []string

	for i, row := range data.Rows {
		report.Processed++
		if primaryIdx >= len(row) {
			report.SkippedInvalid++
			report.Skips = append(report.Skips, models.SkipItem{RowIndex: i, Reason: models.SkipStandardizationFailed})
			continue
		}

		raw := jsonutil.CellString(row[primaryIdx])
		key, ok := fn(raw)
		if raw == "" || !ok {
			report.SkippedInvalid++
			report.Skips = append(report.Skips, models.SkipItem{
				RowIndex: i, Reason: models.SkipStandardizationFailed, Value: raw})
			continue
		}
		if seen[key] {
			report.SkippedDuplicate++
			report.Skips = append(report.Skips, models.SkipItem{
				RowIndex: i, Reason: models.SkipKeyExists, Value: key})
			continue
		}
		seen[key] = true
		candidateKeys = append(candidateKeys, key)

		values := make([]any, 0, len(payload)+2)
		values = append(values, uuid.NewString(), key)
		for _, pc := range payload {
			if pc.idx < len(row) {
				values = append(values, convertCell(pc.typ, row[pc.idx]))
			} else {
				values = append(values, nil)
			}
		}
		pending = append(pending, pendingInsert{rowIndex: i, key: key, values: values})
	}

	existing, err := s.existingKeys(ctx, registry, candidateKeys)
	if err != nil {
		return nil, err
	}

	var inserts [][]any
	for _, p := range pending {
		if existing[p.key] {
			report.SkippedDuplicate++
			report.Skips = append(report.Skips, models.SkipItem{
				RowIndex: p.rowIndex, Reason: models.SkipKeyExists, Value: p.key})
			continue
		}
		inserts = append(inserts, p.values)
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

	if len(inserts) > 0 {
		columnNames := []string{enginesql.ReservedIdentifier, registry.KeyColumn}
		for _, pc := range payload {
			columnNames = append(columnNames, pc.name)
		}
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{registry.TableName}, columnNames, pgx.CopyFromRows(inserts)); err != nil {
			return nil, apperrors.Database(fmt.Sprintf("copy keys into %q", registry.TableName), err)
		}
	}
	if err = s.registryRepo.Touch(ctx, tx, registry.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	report.Added = len(inserts)

	s.logger.Info("Registry upload finished",
		zap.String("registry", registry.Name),
		zap.Int("total", report.Total),
		zap.Int("added", report.Added),
		zap.Int("skipped_duplicate", report.SkippedDuplicate),
		zap.Int("skipped_invalid", report.SkippedInvalid))

	return report, nil
}

// Delete removes the registry's table and descriptor in one transaction.
func (s *registryService) Delete(ctx context.Context, id uuid.UUID) error {
	registry, err := s.Get(ctx, id)
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

	if err = s.provisioner.DropTable(ctx, tx, registry.TableName); err != nil {
		return err
	}
	if err = s.registryRepo.Delete(ctx, tx, id); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Deleted registry",
		zap.String("registry", registry.Name),
		zap.String("table", registry.TableName))

	return nil
}

// existingKeys returns which candidate keys are already stored.
func (s *registryService) existingKeys(ctx context.Context, registry *models.KnowledgeRegistry, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		enginesql.Quote(registry.KeyColumn), enginesql.Quote(registry.TableName), enginesql.Quote(registry.KeyColumn))
	rows, err := s.db.Query(ctx, query, keys)
	if err != nil {
		return nil, apperrors.Database(fmt.Sprintf("check existing keys of %q", registry.TableName), err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apperrors.Database("scan existing key", err)
		}
		existing[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("iterate existing keys", err)
	}

	return existing, nil
}

// newTableName derives a registry table name with a random suffix so two
// registries with colliding sanitized names never fight over a table.
func (s *registryService) newTableName(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return registryTablePrefix + enginesql.Sanitize(strings.ToLower(name)) + "_" + suffix
}
