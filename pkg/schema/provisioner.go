// Package schema provisions and alters the dynamically-named tables that
// back datasets, derived datasets and knowledge registries.
//
// All table and column names funnel through pkg/sql quoting before they
// are spliced into a statement; values always travel as bound parameters.
package schema

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/logging"
	"github.com/tabula-hq/tabula-engine/pkg/models"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// Executor is the subset of pgx executed against; both *pgxpool.Pool and
// pgx.Tx satisfy it, so provisioning steps can join a caller's
// transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Column is an introspected table column.
type Column struct {
	Name     string
	DataType string
}

// Provisioner builds and alters table structures from column maps.
type Provisioner struct {
	logger *zap.Logger
}

// NewProvisioner creates a Provisioner. A nil logger is replaced with a no-op.
func NewProvisioner(logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{logger: logger.Named("schema")}
}

// CreateTable builds a table whose first column is the row identifier
// (primary key), followed by one column per column map entry in declared
// order. Reusing the reserved identifier name in the map is a
// configuration error.
func (p *Provisioner) CreateTable(ctx context.Context, ex Executor, table string, columns models.ColumnMap) error {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, enginesql.Quote(enginesql.ReservedIdentifier)+" TEXT PRIMARY KEY")

	for _, spec := range columns {
		if strings.EqualFold(spec.Name, enginesql.ReservedIdentifier) {
			return apperrors.Configuration("column map reuses the reserved identifier column", "column", spec.Name)
		}
		defs = append(defs, enginesql.Quote(spec.Name)+" "+spec.Type.PostgresType())
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", enginesql.Quote(table), strings.Join(defs, ", "))
	p.logger.Debug("Creating table", zap.String("table", table),
		zap.String("statement", logging.SanitizeStatement(stmt)))

	if _, err := ex.Exec(ctx, stmt); err != nil {
		return apperrors.Database(fmt.Sprintf("create table %q", table), err)
	}
	return nil
}

// keyedTableTimestampColumn records when each key row was first stored.
const keyedTableTimestampColumn = "created_at"

// CreateKeyedTable builds a table like CreateTable but with a unique,
// non-null TEXT key column directly after the row identifier, followed by
// a creation timestamp. Registry tables use this shape so duplicate
// canonical keys are rejected by the store itself.
func (p *Provisioner) CreateKeyedTable(ctx context.Context, ex Executor, table, keyColumn string, columns models.ColumnMap) error {
	defs := make([]string, 0, len(columns)+3)
	defs = append(defs, enginesql.Quote(enginesql.ReservedIdentifier)+" TEXT PRIMARY KEY")
	defs = append(defs, enginesql.Quote(keyColumn)+" TEXT UNIQUE NOT NULL")
	defs = append(defs, enginesql.Quote(keyedTableTimestampColumn)+" TIMESTAMPTZ NOT NULL DEFAULT now()")

	for _, spec := range columns {
		if strings.EqualFold(spec.Name, enginesql.ReservedIdentifier) ||
			strings.EqualFold(spec.Name, keyColumn) ||
			strings.EqualFold(spec.Name, keyedTableTimestampColumn) {
			return apperrors.Configuration("column map reuses a reserved column", "column", spec.Name)
		}
		defs = append(defs, enginesql.Quote(spec.Name)+" "+spec.Type.PostgresType())
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", enginesql.Quote(table), strings.Join(defs, ", "))
	p.logger.Debug("Creating keyed table", zap.String("table", table),
		zap.String("statement", logging.SanitizeStatement(stmt)))

	if _, err := ex.Exec(ctx, stmt); err != nil {
		return apperrors.Database(fmt.Sprintf("create keyed table %q", table), err)
	}
	return nil
}

// TableColumns introspects a table's columns and types in ordinal order.
func (p *Provisioner) TableColumns(ctx context.Context, ex Executor, table string) ([]Column, error) {
	const query = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := ex.Query(ctx, query, table)
	if err != nil {
		return nil, apperrors.Database(fmt.Sprintf("introspect table %q", table), err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, apperrors.Database("scan column metadata", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("iterate column metadata", err)
	}

	return columns, nil
}

// TableExists reports whether a table exists in the current schema.
func (p *Provisioner) TableExists(ctx context.Context, ex Executor, table string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`

	var exists bool
	if err := ex.QueryRow(ctx, query, table).Scan(&exists); err != nil {
		return false, apperrors.Database(fmt.Sprintf("check table %q", table), err)
	}
	return exists, nil
}

// CopyStructure introspects sourceTable and recreates its columns and
// types under targetTable, optionally appending extra columns. The row
// identifier column keeps its primary key role.
func (p *Provisioner) CopyStructure(ctx context.Context, ex Executor, sourceTable, targetTable string, extra []Column) error {
	columns, err := p.TableColumns(ctx, ex, sourceTable)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return apperrors.NotFound("source table does not exist", "table", sourceTable)
	}

	defs := make([]string, 0, len(columns)+len(extra))
	for _, c := range columns {
		def := enginesql.Quote(c.Name) + " " + c.DataType
		if c.Name == enginesql.ReservedIdentifier {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	for _, c := range extra {
		defs = append(defs, enginesql.Quote(c.Name)+" "+c.DataType)
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", enginesql.Quote(targetTable), strings.Join(defs, ", "))
	p.logger.Debug("Copying table structure",
		zap.String("source", sourceTable),
		zap.String("target", targetTable),
		zap.String("statement", logging.SanitizeStatement(stmt)))

	if _, err := ex.Exec(ctx, stmt); err != nil {
		return apperrors.Database(fmt.Sprintf("copy structure %q -> %q", sourceTable, targetTable), err)
	}
	return nil
}

// AddColumn issues an additive schema change. Fails with a validation
// error if the table is missing or the column already exists.
func (p *Provisioner) AddColumn(ctx context.Context, ex Executor, table, column, dataType string) error {
	columns, err := p.TableColumns(ctx, ex, table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return apperrors.Validation("table does not exist", "table", table)
	}
	for _, c := range columns {
		if c.Name == column {
			return apperrors.Validation("column already exists", "column", column)
		}
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		enginesql.Quote(table), enginesql.Quote(column), dataType)
	if _, err := ex.Exec(ctx, stmt); err != nil {
		return apperrors.Database(fmt.Sprintf("add column %q to %q", column, table), err)
	}
	return nil
}

// CreateIndex creates an index on one column, optionally restricted to
// non-null values (a partial index). Idempotent: repeated calls are no-ops.
func (p *Provisioner) CreateIndex(ctx context.Context, ex Executor, table, column string, notNullOnly bool) error {
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		enginesql.Quote(IndexName(table, column)), enginesql.Quote(table), enginesql.Quote(column))
	if notNullOnly {
		stmt += fmt.Sprintf(" WHERE %s IS NOT NULL", enginesql.Quote(column))
	}

	if _, err := ex.Exec(ctx, stmt); err != nil {
		return apperrors.Database(fmt.Sprintf("create index on %q(%q)", table, column), err)
	}
	return nil
}

// DropTable drops a table if it exists. Used both by cascade deletes and
// by cleanup of orphaned tables after partial provisioning failures.
func (p *Provisioner) DropTable(ctx context.Context, ex Executor, table string) error {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", enginesql.Quote(table))
	if _, err := ex.Exec(ctx, stmt); err != nil {
		return apperrors.Database(fmt.Sprintf("drop table %q", table), err)
	}
	return nil
}

// CopyRows bulk-copies every row of sourceTable into targetTable. Column
// sets must be compatible; the caller guarantees targetTable was created
// by CopyStructure immediately before.
func (p *Provisioner) CopyRows(ctx context.Context, ex Executor, sourceTable, targetTable string) (int64, error) {
	stmt := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s",
		enginesql.Quote(targetTable), enginesql.Quote(sourceTable))
	tag, err := ex.Exec(ctx, stmt)
	if err != nil {
		return 0, apperrors.Database(fmt.Sprintf("copy rows %q -> %q", sourceTable, targetTable), err)
	}
	return tag.RowsAffected(), nil
}

// RowCount returns the number of rows in a table.
func (p *Provisioner) RowCount(ctx context.Context, ex Executor, table string) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", enginesql.Quote(table))
	var count int64
	if err := ex.QueryRow(ctx, stmt).Scan(&count); err != nil {
		return 0, apperrors.Database(fmt.Sprintf("count rows of %q", table), err)
	}
	return count, nil
}

// IndexName derives a deterministic index name for (table, column),
// bounded to Postgres's 63-byte identifier limit. Long names keep a
// readable prefix plus a hash of the full pair.
func IndexName(table, column string) string {
	name := "idx_" + enginesql.Sanitize(table) + "_" + enginesql.Sanitize(column)
	if len(name) <= 63 {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(table))
	h.Write([]byte{0})
	h.Write([]byte(column))
	return fmt.Sprintf("%s_%08x", name[:54], h.Sum32())
}
