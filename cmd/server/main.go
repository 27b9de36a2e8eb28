package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/config"
	"github.com/Simplici0/printquote/internal/db"
	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/janitor"
	"github.com/Simplici0/printquote/internal/logging"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/mesh"
	"github.com/Simplici0/printquote/internal/metrics"
	"github.com/Simplici0/printquote/internal/migrations"
	"github.com/Simplici0/printquote/internal/pricing"
	"github.com/Simplici0/printquote/internal/process"
	"github.com/Simplici0/printquote/internal/quote"
	"github.com/Simplici0/printquote/internal/seed"
	"github.com/Simplici0/printquote/internal/slicer"
	"github.com/Simplici0/printquote/internal/store"
)

const (
	additiveCatalog    = "3d_printing.json"
	subtractiveCatalog = "cnc.yaml"
	shutdownTimeout    = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "printquote: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.IsDev())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings {
		logger.Warn("config: " + w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database, logger); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}
	stats, err := seed.Run(ctx, database, seed.Config{AdminEmail: cfg.AdminEmail, AdminPassword: cfg.AdminPassword})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	logger.Info("seed complete", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))

	m := metrics.New()
	registry, err := buildRegistry(cfg, logger, m)
	if err != nil {
		return err
	}
	generator, err := buildOrchestrator(cfg, logger, m)
	if err != nil {
		return err
	}
	files, closeFiles, err := openFileStore(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer closeFiles()

	jan := janitor.New(janitor.Config{
		Files:           files,
		SlicerTempDir:   cfg.Slicer.TempDir,
		WorkspaceMaxAge: 2 * cfg.Slicer.Timeout,
		Logger:          logger,
	})
	if err := jan.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}

	srv := &server{
		auth:      newAuthService(database, cfg.SessionSecret),
		registry:  registry,
		generator: generator,
		quotes:    store.NewQuotes(database),
		files:     files,
		uploadDir: cfg.UploadDir,
		fileTTL:   cfg.QuoteFileTTL,
		maxUpload: defaultMaxUpload,
		metrics:   m.Handler(),
		logger:    logger,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr), zap.Strings("processes", registry.Names()))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	jan.Stop(shutdownCtx)
	return nil
}

// buildRegistry loads both material catalogs and builds one processor per
// manufacturing process.
func buildRegistry(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (*process.Registry, error) {
	additiveMaterials, err := material.LoadCatalog(filepath.Join(cfg.CatalogDir, additiveCatalog), process.NameAdditive, logger)
	if err != nil {
		return nil, fmt.Errorf("load 3d printing catalog: %w", err)
	}
	subtractiveMaterials, err := material.LoadCatalog(filepath.Join(cfg.CatalogDir, subtractiveCatalog), process.NameSubtractive, logger)
	if err != nil {
		return nil, fmt.Errorf("load cnc catalog: %w", err)
	}

	additive, err := process.NewAdditive(process.AdditiveConfig{
		Catalog: additiveMaterials,
		Slicer: &slicer.Runner{
			Command:  cfg.Slicer.Command,
			Timeout:  cfg.Slicer.Timeout,
			TempDir:  cfg.Slicer.TempDir,
			Logger:   logger,
			Observer: m,
		},
		Profiles: cfg.Profiles,
		Slicing:  cfg.Slicing,
		Logger:   logger,
		Observer: m,
	})
	if err != nil {
		return nil, fmt.Errorf("build 3d printing processor: %w", err)
	}

	subCfg := process.SubtractiveConfig{
		Catalog:     subtractiveMaterials,
		RemovalRate: cfg.RemovalRate,
		Logger:      logger,
		Observer:    m,
	}
	if prof, ok := cfg.Profiles[dfm.TechnologyCNCMilling]; ok {
		subCfg.Profile = &prof
	}
	subtractive, err := process.NewSubtractive(subCfg)
	if err != nil {
		return nil, fmt.Errorf("build cnc processor: %w", err)
	}
	return process.NewRegistry(additive, subtractive), nil
}

func buildOrchestrator(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (*quote.Orchestrator, error) {
	pricer, err := pricing.NewPricer(cfg.Markup, cfg.HourlyRate)
	if err != nil {
		return nil, fmt.Errorf("build pricer: %w", err)
	}
	loader := mesh.Loader{Step: &mesh.StepConverter{
		Command:    cfg.Step.Command,
		Deflection: cfg.Step.Deflection,
		Timeout:    cfg.Step.Timeout,
		Logger:     logger,
	}}
	return quote.NewOrchestrator(loader, pricer, quote.WithLogger(logger), quote.WithObserver(m))
}

// openFileStore picks redis when REDIS_ADDR is set and the sqlite table
// otherwise.
func openFileStore(ctx context.Context, cfg config.Config, database *sql.DB) (store.FileStore, func(), error) {
	if cfg.RedisAddr == "" {
		return store.NewSQLFiles(database), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return store.NewRedisFiles(client), func() { _ = client.Close() }, nil
}
