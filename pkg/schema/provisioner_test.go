package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	"github.com/tabula-hq/tabula-engine/pkg/models"
)

// fakeExecutor records executed statements without touching a database.
type fakeExecutor struct {
	statements []string
	execErr    error
}

func (f *fakeExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.statements = append(f.statements, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecutor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fake")
}

func (f *fakeExecutor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{}
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...any) error { return errors.New("scan not supported by fake") }

func TestCreateTableStatement(t *testing.T) {
	ex := &fakeExecutor{}
	p := NewProvisioner(nil)

	columns := models.ColumnMap{
		{Name: "full_name", Type: models.TypeText},
		{Name: "age", Type: models.TypeInteger},
		{Name: "score", Type: models.TypeReal},
		{Name: "avatar", Type: models.TypeBlob},
	}

	if err := p.CreateTable(context.Background(), ex, "ds_people", columns); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if len(ex.statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(ex.statements))
	}

	want := `CREATE TABLE "ds_people" ("record_id" TEXT PRIMARY KEY, "full_name" TEXT, "age" BIGINT, "score" DOUBLE PRECISION, "avatar" BYTEA)`
	if ex.statements[0] != want {
		t.Errorf("statement mismatch:\n got %s\nwant %s", ex.statements[0], want)
	}
}

func TestCreateKeyedTableStatement(t *testing.T) {
	ex := &fakeExecutor{}
	p := NewProvisioner(nil)

	columns := models.ColumnMap{{Name: "source", Type: models.TypeText}}
	if err := p.CreateKeyedTable(context.Background(), ex, "reg_phones_a1b2c3d4", "canonical_key", columns); err != nil {
		t.Fatalf("CreateKeyedTable: %v", err)
	}

	want := `CREATE TABLE "reg_phones_a1b2c3d4" ("record_id" TEXT PRIMARY KEY, "canonical_key" TEXT UNIQUE NOT NULL, "created_at" TIMESTAMPTZ NOT NULL DEFAULT now(), "source" TEXT)`
	if ex.statements[0] != want {
		t.Errorf("statement mismatch:\n got %s\nwant %s", ex.statements[0], want)
	}
}

func TestCreateKeyedTableRejectsReservedColumns(t *testing.T) {
	for _, reserved := range []string{"record_id", "canonical_key", "created_at"} {
		ex := &fakeExecutor{}
		p := NewProvisioner(nil)

		columns := models.ColumnMap{{Name: reserved, Type: models.TypeText}}
		err := p.CreateKeyedTable(context.Background(), ex, "reg_phones_a1b2c3d4", "canonical_key", columns)
		if err == nil {
			t.Fatalf("expected error for column %q", reserved)
		}
		if apperrors.KindOf(err) != apperrors.KindConfiguration {
			t.Errorf("column %q: expected configuration error, got kind %q", reserved, apperrors.KindOf(err))
		}
	}
}

func TestCreateTableRejectsReservedColumn(t *testing.T) {
	ex := &fakeExecutor{}
	p := NewProvisioner(nil)

	columns := models.ColumnMap{{Name: "record_id", Type: models.TypeText}}
	err := p.CreateTable(context.Background(), ex, "ds_people", columns)
	if err == nil {
		t.Fatal("expected error for reserved column reuse")
	}
	if apperrors.KindOf(err) != apperrors.KindConfiguration {
		t.Errorf("expected configuration error, got kind %q", apperrors.KindOf(err))
	}
	if len(ex.statements) != 0 {
		t.Errorf("no statement should be issued, got %d", len(ex.statements))
	}
}

func TestCreateIndexStatement(t *testing.T) {
	tests := []struct {
		name        string
		notNullOnly bool
		want        string
	}{
		{
			name:        "full index",
			notNullOnly: false,
			want:        `CREATE INDEX IF NOT EXISTS "idx_ds_people_email" ON "ds_people" ("email")`,
		},
		{
			name:        "partial index",
			notNullOnly: true,
			want:        `CREATE INDEX IF NOT EXISTS "idx_ds_people_email" ON "ds_people" ("email") WHERE "email" IS NOT NULL`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExecutor{}
			p := NewProvisioner(nil)
			if err := p.CreateIndex(context.Background(), ex, "ds_people", "email", tt.notNullOnly); err != nil {
				t.Fatalf("CreateIndex: %v", err)
			}
			if ex.statements[0] != tt.want {
				t.Errorf("statement mismatch:\n got %s\nwant %s", ex.statements[0], tt.want)
			}
		})
	}
}

func TestDropTableStatement(t *testing.T) {
	ex := &fakeExecutor{}
	p := NewProvisioner(nil)
	if err := p.DropTable(context.Background(), ex, "ds_people_v1"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	want := `DROP TABLE IF EXISTS "ds_people_v1"`
	if ex.statements[0] != want {
		t.Errorf("statement mismatch:\n got %s\nwant %s", ex.statements[0], want)
	}
}

func TestCopyRowsStatement(t *testing.T) {
	ex := &fakeExecutor{}
	p := NewProvisioner(nil)
	n, err := p.CopyRows(context.Background(), ex, "ds_people", "ds_people_v1")
	if err != nil {
		t.Fatalf("CopyRows: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row affected from fake tag, got %d", n)
	}
	want := `INSERT INTO "ds_people_v1" SELECT * FROM "ds_people"`
	if ex.statements[0] != want {
		t.Errorf("statement mismatch:\n got %s\nwant %s", ex.statements[0], want)
	}
}

func TestIndexName(t *testing.T) {
	got := IndexName("ds_people", "email")
	if got != "idx_ds_people_email" {
		t.Errorf("IndexName = %q", got)
	}

	long := IndexName(strings.Repeat("a", 60), strings.Repeat("b", 60))
	if len(long) > 63 {
		t.Errorf("long index name exceeds 63 bytes: %d", len(long))
	}
	if !strings.HasPrefix(long, "idx_aaaa") {
		t.Errorf("long name should keep readable prefix, got %q", long)
	}
	if again := IndexName(strings.Repeat("a", 60), strings.Repeat("b", 60)); again != long {
		t.Errorf("index names must be deterministic: %q vs %q", long, again)
	}
}
