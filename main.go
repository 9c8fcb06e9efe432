package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/tabula-hq/tabula-engine/pkg/config"
	"github.com/tabula-hq/tabula-engine/pkg/database"
	"github.com/tabula-hq/tabula-engine/pkg/handlers"
	"github.com/tabula-hq/tabula-engine/pkg/repositories"
	"github.com/tabula-hq/tabula-engine/pkg/retry"
	"github.com/tabula-hq/tabula-engine/pkg/schema"
	"github.com/tabula-hq/tabula-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Database.Database),
		zap.Int("ingest_batch_size", cfg.Engine.IngestBatchSize))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.Database,
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	// The store may still be coming up when the engine starts.
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
	})
	if err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	// Repositories and schema provisioner.
	datasetRepo := repositories.NewDatasetRepository()
	uploadRepo := repositories.NewUploadRepository()
	derivedRepo := repositories.NewDerivedRepository()
	registryRepo := repositories.NewRegistryRepository()
	provisioner := schema.NewProvisioner(logger)

	// Services.
	datasetService := services.NewDatasetService(db, datasetRepo, uploadRepo, derivedRepo, provisioner, logger)
	syncService := services.NewSyncService(db, datasetRepo, derivedRepo, provisioner, cfg.Engine.IngestBatchSize, logger)
	ingestService := services.NewIngestService(db, datasetRepo, uploadRepo, syncService, cfg.Engine.IngestBatchSize, logger)
	enrichService := services.NewEnrichService(db, datasetRepo, derivedRepo, provisioner, cfg.Engine.IngestBatchSize, logger)
	registryService := services.NewRegistryService(db, registryRepo, provisioner, logger)
	searchService := services.NewSearchService(db, registryRepo, derivedRepo, datasetRepo, cfg.Engine.SearchRowLimit, logger)

	// Handlers.
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDatasetsHandler(datasetService, ingestService, logger).RegisterRoutes(mux)
	handlers.NewDerivedHandler(enrichService, syncService, logger).RegisterRoutes(mux)
	handlers.NewRegistriesHandler(registryService, logger).RegisterRoutes(mux)
	handlers.NewSearchHandler(searchService, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting tabula-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
