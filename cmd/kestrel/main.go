// Kestrel - Dual-model risk scoring for public procurement.
// Copyright (c) 2026 opensource.procurement
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-procurement/kestrel/internal/anomaly"
	"github.com/opensource-procurement/kestrel/internal/api"
	"github.com/opensource-procurement/kestrel/internal/bus"
	"github.com/opensource-procurement/kestrel/internal/cache"
	"github.com/opensource-procurement/kestrel/internal/config"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/fusion"
	"github.com/opensource-procurement/kestrel/internal/repository"
	"github.com/opensource-procurement/kestrel/internal/rules"
	"github.com/opensource-procurement/kestrel/internal/scoring"
	"github.com/opensource-procurement/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (overrides KESTREL_CONFIG)")
	flag.Parse()

	// Load configuration: defaults, then file, then KESTREL_* environment
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"workers", cfg.Scoring.MaxWorkers,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load the anomaly model: a local artifact file or a remote scoring
	// service, selected by configuration.
	model, err := loadModel(ctx, cfg.Model)
	if err != nil {
		slog.Error("failed to load anomaly model", "error", err)
		os.Exit(1)
	}
	adapter, err := anomaly.NewAdapter(model)
	if err != nil {
		slog.Error("anomaly model is incompatible with the feature schema", "error", err)
		os.Exit(1)
	}
	slog.Info("anomaly model loaded",
		"version", model.Version(),
		"schema", model.SchemaVersion(),
		"features", len(model.FeatureNames()),
	)

	// Initialize rule Scorer with the built-in indicator set
	scorer, err := rules.NewScorer(rules.NewRegistry(rules.BuiltinIndicators()...))
	if err != nil {
		slog.Error("failed to initialize rule scorer", "error", err)
		os.Exit(1)
	}
	defer scorer.Close()

	// Load custom rules from the database (managed via the /rules API)
	if err := loadCustomRules(ctx, repo, scorer); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule scorer initialized",
		"indicators", scorer.IndicatorCount(),
		"custom_rules", scorer.CustomRulesCount(),
	)

	// Initialize fusion engine with configured thresholds
	fuser, err := fusion.NewEngine(cfg.Thresholds)
	if err != nil {
		slog.Error("invalid scoring thresholds", "error", err)
		os.Exit(1)
	}

	pipeline := scoring.NewPipeline(scorer, adapter, fuser, cfg.Scoring.MaxWorkers)

	// Initialize async Worker for queued batches
	asyncWorker := worker.NewWorker(busImpl, repo, pipeline)

	tenantIDs := []string{}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		for _, id := range strings.Split(envTenants, ",") {
			if id = strings.TrimSpace(id); id != "" {
				tenantIDs = append(tenantIDs, id)
			}
		}
	}

	if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}
	slog.Info("async worker started", "tenant_count", len(tenantIDs))

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, scorer, pipeline, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// loadModel resolves the configured anomaly model source.
func loadModel(ctx context.Context, cfg domain.ModelConfig) (anomaly.Model, error) {
	if cfg.URL != "" {
		return anomaly.NewRemoteModel(ctx, cfg.URL, cfg.MaxRetries)
	}
	return anomaly.LoadArtifact(cfg.Path)
}

// loadCustomRules loads custom rules from the database into the scorer.
// Custom rules are configured via POST /rules - there are no file defaults.
func loadCustomRules(ctx context.Context, repo domain.Repository, scorer *rules.Scorer) error {
	dbRules, err := repo.ListCustomRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Start with builtins only - rules can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return scorer.LoadCustomRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                   KESTREL")
	fmt.Println("     Procurement Fraud Risk Scoring Engine")
	fmt.Println("       Two models. One risk verdict.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /batches                       - Submit a batch of tenders")
	fmt.Println("    POST /batches/csv                   - Submit a raw CSV export")
	fmt.Println("    GET  /batches/{id}                  - Get batch metadata")
	fmt.Println("    GET  /batches/{id}/reports          - List a batch's risk reports")
	fmt.Println("    GET  /batches/{id}/reports/export   - Export reports as CSV")
	fmt.Println("    GET  /batches/{id}/summary          - Executive summary")
	fmt.Println("    GET  /reports/{id}                  - Get a risk report")
	fmt.Println("    GET  /reports/{id}/explain          - Explanation context")
	fmt.Println("    GET  /thresholds                    - Active scoring thresholds")
	fmt.Println("    GET  /rules                         - List indicators and custom rules")
	fmt.Println("    POST /rules                         - Create a custom rule")
	fmt.Println("    POST /rules/reload                  - Hot-reload custom rules")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println("    GET  /metrics                       - Prometheus metrics")
	fmt.Println()
}
