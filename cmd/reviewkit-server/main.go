// Package main provides the HTTP server for reviewkit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tkohari/reviewkit/internal/config"
	"github.com/tkohari/reviewkit/internal/db"
	"github.com/tkohari/reviewkit/internal/index"
	"github.com/tkohari/reviewkit/internal/jobs"
	"github.com/tkohari/reviewkit/internal/llm"
	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/notify"
	"github.com/tkohari/reviewkit/internal/server"
	"github.com/tkohari/reviewkit/internal/store/surreal"
)

func main() {
	// Parse flags
	configFile := flag.String("config", "", "path to YAML config file (optional)")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Initialize logging: text to stderr, JSON to the log file
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting reviewkit-server", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("failed to create data directories", "error", err)
		os.Exit(1)
	}

	// Connect to SurrealDB and initialize the schema
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err, "url", cfg.SurrealDBURL)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("REVIEWKIT_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("wiped all database data")
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database client", "error", err)
		}
	}()

	collector := metrics.NewCollector()

	embedder, err := llm.NewEmbedder(cfg, collector, logger)
	if err != nil {
		logger.Error("failed to create embedder", "error", err, "provider", cfg.EmbeddingProvider)
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	categorizer, err := llm.NewCategorizer(ctx, cfg, collector, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create categorizer", "error", err, "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	jobStore := surreal.NewJobStore(dbClient, collector)
	indexStore := surreal.NewIndexStore(dbClient, collector)
	industryStore := surreal.NewIndustryStore(dbClient, collector)

	engine := index.NewEngine(embedder, indexStore, cfg, collector, logger)
	svc := jobs.NewService(jobStore, indexStore, industryStore, engine, categorizer, cfg, logger)

	// Mark jobs orphaned by a previous process as failed
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.Recover(ctx); err != nil {
		cancel()
		logger.Error("failed to recover interrupted jobs", "error", err)
		os.Exit(1)
	}
	cancel()

	watcher := notify.NewWatcher(jobStore, 0, logger)
	srv := server.New(svc, watcher, collector, logger)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // Long for LLM responses
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API available", "addr", cfg.ListenAddr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Interrupt running jobs so they persist a terminal state
	if err := svc.Shutdown(ctx); err != nil {
		logger.Error("job shutdown incomplete", "error", err)
	}

	logger.Info("server stopped")
}
