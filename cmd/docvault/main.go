package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docvault/internal/audit"
	"docvault/internal/config"
	"docvault/internal/keys"
	"docvault/internal/repository/postgres"
	"docvault/internal/service/rotation"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.Keys.Validate(); err != nil {
		log.Fatalf("Invalid key configuration: %v", err)
	}

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	revisionRepo := postgres.NewRevisionRepository(repoConfig)
	tenantKeyRepo := postgres.NewTenantKeyRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	auditSink := audit.NewLogSink(logger)

	// Root key custodian
	var custodian keys.Custodian
	switch cfg.Keys.Backend {
	case config.KeyBackendRemote:
		remote, err := keys.NewRemoteCustodian(cfg.Keys)
		if err != nil {
			log.Fatalf("Failed to create remote custodian: %v", err)
		}
		custodian = remote
	default:
		local, err := keys.NewLocalCustodian(cfg.Keys)
		if err != nil {
			log.Fatalf("Failed to create local custodian: %v", err)
		}
		defer local.Close()
		custodian = local
	}

	keyProvider := keys.NewProvider(tenantKeyRepo, custodian, txManager, auditSink, logger)

	worker := rotation.NewWorker(revisionRepo, tenantKeyRepo, keyProvider, auditSink, rotation.Config{
		BatchSize:   cfg.RotationBatchSize,
		Interval:    cfg.RotationInterval,
		RatePerSec:  cfg.RotationRatePerSec,
		Concurrency: cfg.RotationConcurrency,
	}, logger)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		serve(ctx, cfg, worker, logger)

	case "rotate-kek":
		tenantID := requireTenantArg(cmd)
		version, err := keyProvider.Rotate(ctx, tenantID)
		if err != nil {
			log.Fatalf("Failed to rotate KEK: %v", err)
		}
		fmt.Printf("tenant %s now on kek version %d\n", tenantID, version)
		// Migrate wrapped DEKs immediately rather than waiting for the
		// next background sweep.
		if err := worker.RewrapTenant(ctx, tenantID); err != nil {
			log.Fatalf("Rewrap pass failed (will retry on next sweep): %v", err)
		}

	case "ensure-tenant":
		tenantID := requireTenantArg(cmd)
		if err := keyProvider.EnsureTenant(ctx, tenantID); err != nil {
			log.Fatalf("Failed to provision tenant key: %v", err)
		}
		fmt.Printf("tenant %s provisioned\n", tenantID)

	case "sweep":
		if err := worker.Sweep(ctx); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "usage: docvault [serve|rotate-kek TENANT|ensure-tenant TENANT|sweep]\n")
		os.Exit(2)
	}
}

func requireTenantArg(cmd string) string {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: docvault %s TENANT\n", cmd)
		os.Exit(2)
	}
	return os.Args[2]
}

// serve runs the rotation worker and metrics endpoint until signalled
func serve(ctx context.Context, cfg *config.Config, worker *rotation.Worker, logger *slog.Logger) {
	logger.Info("docvault starting",
		"environment", cfg.Environment,
		"table_prefix", cfg.TablePrefix,
		"key_backend", cfg.Keys.Backend,
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("rotation worker stopped", "error", err)
		}
	}()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
}
