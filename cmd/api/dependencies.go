package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	importhandler "github.com/FACorreiaa/echo-ingest/internal/domain/import/handler"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/ocr"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/echo-ingest/internal/domain/import/service"
	"github.com/FACorreiaa/echo-ingest/pkg/config"
	"github.com/FACorreiaa/echo-ingest/pkg/cron"
	"github.com/FACorreiaa/echo-ingest/pkg/db"
	"github.com/FACorreiaa/echo-ingest/pkg/interceptors"
	"github.com/FACorreiaa/echo-ingest/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Observability
	Registry    *prometheus.Registry
	HTTPMetrics *interceptors.HTTPMetrics

	// Repositories
	ImportRepo  importrepo.ImportRepository
	FileStorage storage.Storage

	// Services
	ImportService  *importservice.ImportService
	ReceiptService *importservice.ReceiptService
	Scheduler      *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initMetrics creates the registry served on /metrics
func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.HTTPMetrics = interceptors.NewHTTPMetrics(d.Registry)
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        int32(d.Config.Database.MinConns),
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the database repository and file storage
func (d *Dependencies) initRepositories(ctx context.Context) error {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)

	fileStorage, err := storage.New(ctx, &storage.Config{
		Type:              storage.StorageType(d.Config.Storage.Type),
		LocalPath:         d.Config.Storage.LocalPath,
		S3Bucket:          d.Config.Storage.S3Bucket,
		S3Region:          d.Config.Storage.S3Region,
		S3AccessKeyID:     d.Config.Storage.S3AccessKeyID,
		S3SecretAccessKey: d.Config.Storage.S3SecretAccessKey,
		S3Endpoint:        d.Config.Storage.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.Logger.Info("repositories initialized", slog.String("storage", d.Config.Storage.Type))
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	polarity, err := parser.ParsePolarity(d.Config.Import.Polarity)
	if err != nil {
		return err
	}

	metrics := importservice.NewMetrics(d.Registry)
	docs := parser.NewPDFParser(d.Logger).WithWorkers(d.Config.Import.ParseWorkers)

	d.ImportService = importservice.NewImportService(d.ImportRepo, d.FileStorage, docs, importservice.Options{
		PreviewLimit: d.Config.Import.PreviewLimit,
		Polarity:     polarity,
		Currency:     d.Config.Import.DefaultCurrency,
	}, d.Logger).WithMetrics(metrics)

	recognizer := ocr.NewTesseractRecognizer(d.Config.Import.OCRLanguage, d.Logger)
	d.ReceiptService = importservice.NewReceiptService(
		d.ImportRepo,
		d.FileStorage,
		docs,
		recognizer,
		d.Config.Import.DefaultCurrency,
		d.Logger,
	).WithMetrics(metrics)

	// Stale pending job sweeper
	d.Scheduler = cron.NewScheduler(d.ImportService, d.Config.Import.SweepSchedule, d.Config.Import.StaleAfter, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.ReceiptService, d.Logger).
		WithMaxUploadBytes(d.Config.Server.MaxUploadBytes)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
