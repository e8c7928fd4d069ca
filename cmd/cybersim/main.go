// CyberSim server — provides the HTTP/WebSocket API and runs the queue
// workers that drive incident-response simulations.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cybersim-labs/cybersim/pkg/api"
	"github.com/cybersim-labs/cybersim/pkg/config"
	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
	"github.com/cybersim-labs/cybersim/pkg/queue"
	"github.com/cybersim-labs/cybersim/pkg/ratings"
	"github.com/cybersim-labs/cybersim/pkg/store"
	"github.com/cybersim-labs/cybersim/pkg/tasks"
)

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID setting > HOSTNAME env > "local"
func resolvePodID(cfg *config.Settings) string {
	if cfg.PodID != "" {
		return cfg.PodID
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	envPath := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	podID := resolvePodID(cfg)

	slog.Info("Starting CyberSim",
		"http_port", cfg.HTTPPort,
		"pod_id", podID,
		"workers", cfg.WorkerCount)

	ctx := context.Background()

	// Redis backs the state store and the cross-instance event relay.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	pingCancel()
	defer rdb.Close()

	bus := events.NewBus(rdb)
	relay := events.NewRelay(bus, rdb)
	relay.Start(ctx)
	defer relay.Stop()

	connManager := events.NewConnectionManager(bus, 10*time.Second)
	st := store.New(rdb, cfg.StateTTL)

	if cfg.OracleAPIKey == "" {
		slog.Warn("ORACLE_API_KEY not set, NPC dialogue and ratings will use fallback responses")
	}
	llm := oracle.NewAnthropic(cfg.OracleAPIKey, cfg.OracleModel)

	// Rating persistence is optional; without a database ratings are only
	// delivered over the event stream.
	var ratingsStore *ratings.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		ratingsStore = ratings.NewFromPool(pool)
		if err := ratingsStore.EnsureSchema(ctx); err != nil {
			slog.Error("Failed to ensure ratings schema", "error", err)
			os.Exit(1)
		}
		slog.Info("Rating persistence enabled")
	} else {
		slog.Info("Rating persistence disabled, DATABASE_URL not set")
	}

	// Worker pool processes simulation jobs from the in-process queue.
	q := queue.NewMemory()
	executor := tasks.New(st, bus, q, llm, ratingsStore)
	workerPool := queue.NewWorkerPool(podID, q, executor, queue.Config{
		WorkerCount: cfg.WorkerCount,
	})
	workerPool.Start(ctx)

	httpServer := api.NewServer(cfg, st, q, connManager, ratingsStore)

	// Start HTTP server (non-blocking).
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("CyberSim started successfully", "pod_id", podID)

	// Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop the worker pool first so in-flight jobs finish and persist.
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, abandoning in-flight jobs")
	}

	// Stop HTTP server with its own timeout budget.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
