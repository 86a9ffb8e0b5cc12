package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/application/dispatcher"
	"github.com/docuflow/docuflow/internal/application/service"
	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/internal/domain/event"
	"github.com/docuflow/docuflow/internal/export"
	"github.com/docuflow/docuflow/internal/infrastructure/external/openai"
	"github.com/docuflow/docuflow/internal/infrastructure/pdf"
	"github.com/docuflow/docuflow/internal/infrastructure/persistence/repository"
	"github.com/docuflow/docuflow/internal/infrastructure/persistence/sqlite"
	"github.com/docuflow/docuflow/internal/infrastructure/storage"
	httpadapter "github.com/docuflow/docuflow/internal/interfaces/http"
	"github.com/docuflow/docuflow/internal/metrics"
	"github.com/docuflow/docuflow/pkg/database"
	"github.com/docuflow/docuflow/pkg/utils"
)

func main() {
	// Local development overrides, ignored when absent
	_ = gotenv.Load()

	// Load configuration
	configPath := os.Getenv("DOCUFLOW_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting DocuFlow",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	kvLogger := utils.NewKVLogger(logger)

	// Transaction manager and repositories
	txManager := sqlite.NewDB(db.DB, logger)
	workflowRepo := repository.NewWorkflowRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	stepRepo := repository.NewStepRepository(db.DB, logger)
	documentRepo := repository.NewDocumentRepository(db.DB, logger)
	extractionRepo := repository.NewExtractionRepository(db.DB, logger)
	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Infrastructure collaborators
	fileStorage, err := storage.NewLocalFileStorage(cfg.Storage.BaseDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}
	renderer := pdf.NewRenderer(logger)
	extractor := openai.NewExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)
	exporter := export.NewExporter(logger)
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Event dispatcher with the audit trail subscribed to every event type
	bus := dispatcher.New(dispatcher.WithLogger(kvLogger))
	defer bus.Close()

	auditService := service.NewAuditService(auditRepo, kvLogger)
	for _, t := range []event.Type{
		event.TypeApprovalStarted,
		event.TypeTransitionExecuted,
		event.TypeAutoAdvanced,
		event.TypeMetadataUpdated,
		event.TypeDocumentUploaded,
		event.TypeExtractionCompleted,
		event.TypeWorkflowSaved,
	} {
		bus.Subscribe(t, "audit_trail", auditService.HandleEvent)
	}

	// Application services
	workflowService := service.NewWorkflowService(workflowRepo, instanceRepo, txManager, bus, kvLogger)
	approvalService := service.NewApprovalService(
		workflowRepo, instanceRepo, stepRepo, documentRepo,
		txManager, bus, collector, kvLogger,
	)
	documentService := service.NewDocumentService(documentRepo, fileStorage, renderer, bus, kvLogger)
	extractionService := service.NewExtractionService(
		documentRepo, extractionRepo, templateRepo, renderer, extractor,
		txManager, bus, kvLogger,
	)

	// HTTP server
	server := httpadapter.NewServer(
		httpadapter.ServerConfig{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			ReadTimeout:   cfg.Server.ReadTimeout,
			WriteTimeout:  cfg.Server.WriteTimeout,
			MaxUploadSize: cfg.Storage.MaxUploadSize,
		},
		workflowService,
		approvalService,
		documentService,
		extractionService,
		auditService,
		exporter,
		kvLogger,
	)

	// Shut down on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
