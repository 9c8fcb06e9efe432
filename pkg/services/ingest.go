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
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// IngestService appends parsed tabular data to a dataset's backing table.
type IngestService interface {
	Ingest(ctx context.Context, datasetID uuid.UUID, filename, fileKind string, data models.TabularData, override bool, progress models.ProgressFunc) (*models.UploadRecord, error)
	IngestBulk(ctx context.Context, datasetID uuid.UUID, files []models.BulkFile) ([]models.FileOutcome, error)
	ListUploads(ctx context.Context, datasetID uuid.UUID) ([]*models.UploadRecord, error)
}

type ingestService struct {
	db          *database.DB
	datasetRepo repositories.DatasetRepository
	uploadRepo  repositories.UploadRepository
	syncService SyncService
	batchSize   int
	logger      *zap.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	db *database.DB,
	datasetRepo repositories.DatasetRepository,
	uploadRepo repositories.UploadRepository,
	syncService SyncService,
	batchSize int,
	logger *zap.Logger,
) IngestService {
	return &ingestService{
		db:          db,
		datasetRepo: datasetRepo,
		uploadRepo:  uploadRepo,
		syncService: syncService,
		batchSize:   batchSize,
		logger:      logger.Named("ingest-service"),
	}
}

var _ IngestService = (*ingestService)(nil)

// Ingest validates the data against the dataset's exact column layout,
// assigns each row a fresh identifier and appends everything in one
// transaction. An already-seen filename is rejected as a conflict unless
// override is set, in which case the old upload record is replaced and
// the rows appended like any other upload.
//
// After the commit, derived datasets of the dataset are synced on a
// best-effort basis: sync failures are logged, never surfaced.
func (s *ingestService) Ingest(ctx context.Context, datasetID uuid.UUID, filename, fileKind string, data models.TabularData, override bool, progress models.ProgressFunc) (*models.UploadRecord, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperrors.Validation("filename is required", "filename", filename)
	}

	dataset, err := s.datasetRepo.GetByID(ctx, s.db, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, apperrors.NotFound("dataset not found", "id", datasetID.String())
	}

	if !override {
		existing, err := s.uploadRepo.GetByFilename(ctx, s.db, datasetID, filename)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperrors.Conflict("filename was already uploaded to this dataset", "filename", filename)
		}
	}

	upload, err := s.ingest(ctx, dataset, filename, fileKind, data, progress)
	if err != nil {
		return nil, err
	}

	s.syncBestEffort(ctx, dataset)
	return upload, nil
}

// ingest is the transactional core shared by single and bulk ingestion.
// All validation and row conversion happens before the first write, so a
// rejected upload leaves the backing table untouched.
func (s *ingestService) ingest(ctx context.Context, dataset *models.DatasetDescriptor, filename, fileKind string, data models.TabularData, progress models.ProgressFunc) (*models.UploadRecord, error) {
	if err := validateColumnLayout(dataset, data.Columns); err != nil {
		return nil, err
	}

	inserts, err := convertRows(dataset.Columns, data.Rows)
	if err != nil {
		return nil, err
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

	if err = s.uploadRepo.DeleteByFilename(ctx, tx, dataset.ID, filename); err != nil {
		return nil, err
	}

	columnNames := append([]string{enginesql.ReservedIdentifier}, dataset.Columns.Names()...)
	total := len(inserts)
	for start := 0; start < total; start += s.batchSize {
		end := start + s.batchSize
		if end > total {
			end = total
		}
		var copied int64
		if copied, err = tx.CopyFrom(ctx, pgx.Identifier{dataset.TableName}, columnNames, pgx.CopyFromRows(inserts[start:end])); err != nil {
			return nil, apperrors.Database(fmt.Sprintf("copy rows into %q", dataset.TableName), err)
		}
		if copied != int64(end-start) {
			err = apperrors.Database(
				fmt.Sprintf("copied %d of %d rows into %q", copied, end-start, dataset.TableName), nil)
			return nil, err
		}
		if progress != nil {
			progress(end, total, "ingested rows")
		}
	}

	upload := &models.UploadRecord{
		ID:        uuid.New(),
		DatasetID: dataset.ID,
		Filename:  filename,
		RowCount:  total,
		FileKind:  fileKind,
	}
	if err = s.uploadRepo.Create(ctx, tx, upload); err != nil {
		return nil, err
	}
	if err = s.datasetRepo.Touch(ctx, tx, dataset.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Ingested upload",
		zap.String("dataset", dataset.Name),
		zap.String("filename", filename),
		zap.Int("rows", total))

	return upload, nil
}

// IngestBulk ingests many files against one dataset, never aborting on a
// single file. Files that fail validation, arrived unparsed, repeat a
// filename within the call or repeat an already-stored filename are
// skipped with a per-file reason.
func (s *ingestService) IngestBulk(ctx context.Context, datasetID uuid.UUID, files []models.BulkFile) ([]models.FileOutcome, error) {
	dataset, err := s.datasetRepo.GetByID(ctx, s.db, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, apperrors.NotFound("dataset not found", "id", datasetID.String())
	}

	outcomes := make([]models.FileOutcome, 0, len(files))
	seen := make(map[string]bool, len(files))
	succeeded := 0

	for _, file := range files {
		outcome := models.FileOutcome{Filename: file.Filename, Status: models.BulkSkipped}

		switch {
		case file.ParseFailed:
			outcome.Reason = models.BulkReasonParseFailure
		case seen[file.Filename]:
			outcome.Reason = models.BulkReasonDuplicateInBatch
		default:
			seen[file.Filename] = true

			existing, err := s.uploadRepo.GetByFilename(ctx, s.db, datasetID, file.Filename)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				outcome.Reason = models.BulkReasonDuplicateInStore
				break
			}

			upload, err := s.ingest(ctx, dataset, file.Filename, file.FileKind, file.Data, nil)
			if err != nil {
				if apperrors.KindOf(err) == apperrors.KindSchemaMismatch {
					outcome.Reason = models.BulkReasonSchemaMismatch
					break
				}
				return nil, err
			}
			outcome.Status = models.BulkSucceeded
			outcome.RowCount = upload.RowCount
			succeeded++
		}

		outcomes = append(outcomes, outcome)
	}

	if succeeded > 0 {
		s.syncBestEffort(ctx, dataset)
	}

	s.logger.Info("Bulk ingestion finished",
		zap.String("dataset", dataset.Name),
		zap.Int("files", len(files)),
		zap.Int("succeeded", succeeded))

	return outcomes, nil
}

func (s *ingestService) ListUploads(ctx context.Context, datasetID uuid.UUID) ([]*models.UploadRecord, error) {
	dataset, err := s.datasetRepo.GetByID(ctx, s.db, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, apperrors.NotFound("dataset not found", "id", datasetID.String())
	}
	return s.uploadRepo.ListByDataset(ctx, s.db, datasetID)
}

func (s *ingestService) syncBestEffort(ctx context.Context, dataset *models.DatasetDescriptor) {
	outcomes, err := s.syncService.SyncAllForSource(ctx, dataset.ID)
	if err != nil {
		s.logger.Warn("Post-ingest sync failed",
			zap.String("dataset", dataset.Name),
			zap.Error(err))
		return
	}
	for _, outcome := range outcomes {
		if outcome.Err != "" {
			s.logger.Warn("Post-ingest sync failed for derived dataset",
				zap.String("dataset", dataset.Name),
				zap.String("derived", outcome.Name),
				zap.String("error", outcome.Err))
		}
	}
}

// validateColumnLayout enforces the exact column contract: the upload
// must present the dataset's declared columns, all of them, in declared
// order, and nothing else. The error names every offending column.
func validateColumnLayout(dataset *models.DatasetDescriptor, uploaded []string) error {
	expected := dataset.Columns.Names()

	expectedSet := make(map[string]bool, len(expected))
	for _, name := range expected {
		expectedSet[name] = true
	}
	uploadedSet := make(map[string]bool, len(uploaded))
	for _, name := range uploaded {
		uploadedSet[name] = true
	}

	var missing, unexpected []string
	for _, name := range expected {
		if !uploadedSet[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range uploaded {
		if !expectedSet[name] {
			unexpected = append(unexpected, name)
		}
	}

	switch {
	case len(missing) > 0 || len(unexpected) > 0:
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing: "+strings.Join(missing, ", "))
		}
		if len(unexpected) > 0 {
			parts = append(parts, "unexpected: "+strings.Join(unexpected, ", "))
		}
		return apperrors.SchemaMismatch(
			fmt.Sprintf("columns do not match dataset schema (%s)", strings.Join(parts, "; ")),
			"dataset", dataset.Name)
	case len(uploaded) != len(expected):
		return apperrors.SchemaMismatch(
			fmt.Sprintf("expected %d columns, got %d", len(expected), len(uploaded)),
			"dataset", dataset.Name)
	default:
		for i, name := range expected {
			if uploaded[i] != name {
				return apperrors.SchemaMismatch(
					fmt.Sprintf("columns out of order: expected %q at position %d, got %q", name, i+1, uploaded[i]),
					"dataset", dataset.Name)
			}
		}
	}

	return nil
}

// convertRows prepends a fresh row identifier to every row and coerces
// cells to their declared column types. Conversion runs to completion
// before any insert, so a malformed row rejects the whole upload.
func convertRows(columns models.ColumnMap, rows [][]any) ([][]any, error) {
	inserts := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, apperrors.SchemaMismatch(
				fmt.Sprintf("row %d has %d values, expected %d", i+1, len(row), len(columns)),
				"row", fmt.Sprintf("%d", i+1))
		}

		insert := make([]any, 0, len(row)+1)
		insert = append(insert, uuid.NewString())
		for j, cell := range row {
			insert = append(insert, convertCell(columns[j].Type, cell))
		}
		inserts[i] = insert
	}
	return inserts, nil
}

// convertCell coerces one cell to its declared column type. JSON numbers
// arrive as float64 regardless of the declared type; integer columns get
// them folded back.
func convertCell(t models.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case models.TypeText:
		return jsonutil.CellString(v)
	case models.TypeInteger:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int:
			return int64(n)
		default:
			return v
		}
	case models.TypeBlob:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
		return v
	default:
		return v
	}
}
