// Magpie - Loyalty rule automation that deploys in 60 seconds.
// Copyright (c) 2026 loyaltylab
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loyaltylab/magpie/internal/api"
	"github.com/loyaltylab/magpie/internal/bus"
	"github.com/loyaltylab/magpie/internal/cache"
	"github.com/loyaltylab/magpie/internal/decision"
	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/loyaltylab/magpie/internal/repository"
	"github.com/loyaltylab/magpie/internal/rules"
	"github.com/loyaltylab/magpie/internal/usage"
	"github.com/loyaltylab/magpie/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("MAGPIE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting magpie",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("MAGPIE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Usage Service
	usageSvc := usage.NewService(repo, cacheImpl)
	slog.Info("usage service initialized")

	// Initialize Rule Engine
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load live rules from database for the configured programs
	programIDs := programList()
	loadRulesFromDatabase(ctx, repo, engine, programIDs)
	slog.Info("rule engine initialized", "programs", len(programIDs))

	// Initialize Validator
	validator := rules.NewValidator()

	// Initialize Decision Processor
	processor := decision.NewProcessor()
	slog.Info("decision processor initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("MAGPIE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine, usageSvc, processor)

		workerCfg := worker.Config{
			ProgramIDs: programIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "program_count", len(programIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, validator, usageSvc, processor, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("magpie is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("magpie shutdown complete")
}

// programList returns the loyalty programs this node serves, from the
// MAGPIE_PROGRAMS environment variable (comma-separated).
func programList() []string {
	raw := os.Getenv("MAGPIE_PROGRAMS")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadRulesFromDatabase loads each program's live rules into the engine.
// All rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine, programIDs []string) {
	for _, programID := range programIDs {
		liveRules, err := repo.ListLiveRules(ctx, programID)
		if err != nil {
			slog.Warn("failed to list live rules", "program_id", programID, "error", err)
			continue
		}
		if len(liveRules) == 0 {
			slog.Info("no live rules for program - configure via POST /rules", "program_id", programID)
			continue
		}
		if err := engine.ReloadRules(programID, liveRules); err != nil {
			slog.Error("failed to load rules into engine", "program_id", programID, "error", err)
			continue
		}
		slog.Info("rules loaded", "program_id", programID, "count", len(liveRules))
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🐦 MAGPIE                   ║")
	fmt.Println("  ║       Loyalty Rule Automation Engine      ║")
	fmt.Println("  ║       Every event earns its reward.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /events                - Ingest and evaluate an event")
	fmt.Println("    GET  /evaluations/{id}      - Get evaluation by ID")
	fmt.Println("    GET  /rules                 - List all rules")
	fmt.Println("    POST /rules                 - Create a new rule (draft)")
	fmt.Println("    POST /rules/{id}/validate   - Validate a rule")
	fmt.Println("    POST /rules/{id}/promote    - Promote a draft to live")
	fmt.Println("    POST /rules/{id}/demote     - Demote a live rule to draft")
	fmt.Println("    POST /rules/reload          - Hot-reload live rules")
	fmt.Println("    GET  /campaigns             - List campaigns")
	fmt.Println("    POST /campaigns             - Create a campaign")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
