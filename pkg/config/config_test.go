package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Version != "test" {
		t.Errorf("Version = %q", cfg.Version)
	}
	if cfg.Port != "3080" {
		t.Errorf("Port default = %q", cfg.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port default = %d", cfg.Database.Port)
	}
	if cfg.Engine.IngestBatchSize != 500 {
		t.Errorf("IngestBatchSize default = %d", cfg.Engine.IngestBatchSize)
	}
	if cfg.Engine.SearchRowLimit != 1000 {
		t.Errorf("SearchRowLimit default = %d", cfg.Engine.SearchRowLimit)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "secret")
	t.Setenv("ENGINE_INGEST_BATCH_SIZE", "250")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q", cfg.Database.Host)
	}
	if cfg.Database.Password != "secret" {
		t.Errorf("Database.Password not picked up from env")
	}
	if cfg.Engine.IngestBatchSize != 250 {
		t.Errorf("IngestBatchSize = %d", cfg.Engine.IngestBatchSize)
	}
}

func TestInvalidBatchSizeRejected(t *testing.T) {
	t.Setenv("ENGINE_INGEST_BATCH_SIZE", "0")

	_, err := Load("test")
	if err == nil {
		t.Fatal("expected validation error for zero batch size")
	}
	if !strings.Contains(err.Error(), "ingest_batch_size") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestConnectionString(t *testing.T) {
	c := &DatabaseConfig{
		Host: "localhost", Port: 5432, User: "tabula",
		Password: "pw", Database: "tabula_engine", SSLMode: "disable",
	}
	got := c.ConnectionString()
	want := "host=localhost port=5432 user=tabula password=pw dbname=tabula_engine sslmode=disable"
	if got != want {
		t.Errorf("ConnectionString() = %q", got)
	}
}
