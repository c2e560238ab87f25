package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/solarmail/solarsync/internal/analyzer"
	"github.com/solarmail/solarsync/internal/config"
	"github.com/solarmail/solarsync/internal/database"
	"github.com/solarmail/solarsync/internal/imapsource"
	syncengine "github.com/solarmail/solarsync/internal/sync"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting solarsync", "account", cfg.IMAPEmail)

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Resolve the analyzer once at startup
	an := analyzer.New(analyzer.Config{
		Kind:     cfg.AnalyzerKind,
		ModelURL: cfg.ModelURL,
		ModelID:  cfg.ModelName,
		Timeout:  cfg.ModelTimeout,
	}, logger)
	info := an.Info()
	logger.Info("analyzer resolved",
		"kind", info.Kind, "model", info.ModelID, "ready", info.Ready,
		"sentiment", info.SentimentAvailable, "category", info.CategoryAvailable)

	// Make sure the account has a status row before the first cycle
	if err := db.InitSyncStatus(ctx, cfg.IMAPEmail, cfg.SyncDays); err != nil && !errors.Is(err, database.ErrAlreadyExists) {
		logger.Error("failed to init sync status", "error", err)
		os.Exit(1)
	}

	source := imapsource.New(imapsource.Config{
		Email:       cfg.IMAPEmail,
		Password:    cfg.IMAPPassword,
		Server:      cfg.IMAPServer,
		DialTimeout: cfg.IMAPDialTimeout,
	}, logger)

	engine := syncengine.New(syncengine.Deps{
		Store:    db,
		Source:   source,
		Analyzer: an,
		Account:  cfg.IMAPEmail,
		SyncDays: cfg.SyncDays,
		Enrich:   cfg.Enrich,
		Logger:   logger,
	})

	// Single cycle unless an interval is configured
	if cfg.SyncInterval <= 0 {
		report, err := engine.Run(ctx)
		if err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sync finished",
			"total", report.Total, "new", report.New,
			"duplicate", report.Duplicate, "enriched", report.Enriched)
		return
	}

	// Setup graceful shutdown: stop before the next cycle, never mid-cycle
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	syncengine.NewPoller(engine, cfg.SyncInterval, logger).Run(ctx)
	logger.Info("solarsync stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
