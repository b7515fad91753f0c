package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/audit"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/config"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/database"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/handlers"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/logging"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/middleware"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure at exit is harmless

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	oracleRepo := repositories.NewOracleRepository(db)
	itemRepo := repositories.NewItemRepository(db)
	historyRepo := repositories.NewDrawHistoryRepository(db)
	importRepo := repositories.NewImportRecordRepository(db)

	auditor := audit.NewAuditor(logger)
	recorder := services.NewHistoryRecorder(historyRepo, cfg.Draw.HistoryQueueSize, logger)

	drawService := services.NewDrawService(oracleRepo, itemRepo, historyRepo, recorder, logger,
		services.WithMaxCount(cfg.Draw.MaxCount))
	catalogService := services.NewCatalogService(oracleRepo, itemRepo, auditor, logger)
	importService := services.NewImportService(oracleRepo, importRepo, auditor, logger,
		services.WithMaxImportBytes(cfg.Import.MaxFileBytes))
	exportService := services.NewExportService(oracleRepo, itemRepo, logger)

	requestAuth := handlers.NewRequestAuth(cfg.JWTSigningKey, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewOracleHandler(catalogService, drawService, exportService, requestAuth, logger).RegisterRoutes(mux)
	handlers.NewImportHandler(importService, requestAuth, cfg.Import.MaxFileBytes, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting oracle engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}

	// Drain pending draw history before the pool closes.
	recorder.Close()
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer sqlDB.Close() //nolint:errcheck // best-effort close at startup

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
