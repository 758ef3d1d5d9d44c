// Package main is the entry point for the autodev-engine daemon: it
// wires the event loop (C11) together with its guard, decision,
// queue, safety pipeline, registry, sandbox and vcs collaborators and
// runs until terminated. The startup sequence (load config, build
// dependencies bottom-up, start background workers, wait for signal,
// graceful shutdown) follows cmd/server/main.go.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ipiton-systems/autodev-engine/internal/config"
	"github.com/ipiton-systems/autodev-engine/internal/decision"
	"github.com/ipiton-systems/autodev-engine/internal/domain"
	"github.com/ipiton-systems/autodev-engine/internal/guard"
	"github.com/ipiton-systems/autodev-engine/internal/ingest"
	"github.com/ipiton-systems/autodev-engine/internal/llmclient"
	"github.com/ipiton-systems/autodev-engine/internal/orchestrator"
	"github.com/ipiton-systems/autodev-engine/internal/ports"
	"github.com/ipiton-systems/autodev-engine/internal/queue"
	"github.com/ipiton-systems/autodev-engine/internal/registry"
	"github.com/ipiton-systems/autodev-engine/internal/safety"
	"github.com/ipiton-systems/autodev-engine/internal/safety/validators"
	"github.com/ipiton-systems/autodev-engine/internal/sandbox"
	"github.com/ipiton-systems/autodev-engine/internal/specsource"
)

const serviceName = "autodev-engine"

func main() {
	var configPath string
	var watchRoots []string

	root := &cobra.Command{
		Use:   serviceName,
		Short: "Autonomous code-modification control plane",
		Long:  "Runs the event loop that watches a repository, classifies changes, and applies them through a safety-gated pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, watchRoots)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (optional; defaults layer under env vars)")
	root.Flags().StringSliceVarP(&watchRoots, "watch", "w", []string{"."}, "Directories to watch for source changes")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, watchRoots []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting "+serviceName, "profile", cfg.Profile, "version", cfg.App.Version)

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building dependencies: %w", err)
	}
	defer deps.Close()

	watcher, err := ingest.New(deps.orch, logger, watchRoots, []string{".git", "node_modules", "/vendor/"})
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps.orch.Start(runCtx)
	watcher.Start(runCtx)

	metricsSrv := startMetricsServer(cfg.Metrics)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	if err := watcher.Stop(); err != nil {
		logger.Warn("watcher stop reported an error", "error", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := deps.orch.Stop(stopCtx); err != nil {
		logger.Warn("orchestrator stop reported an error", "error", err)
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info(serviceName + " stopped")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func startMetricsServer(cfg config.MetricsConfig) *http.Server {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// dependencies holds every long-lived collaborator built from Config,
// so run can shut them down in reverse order of construction.
type dependencies struct {
	orch     *orchestrator.Orchestrator
	db       *sql.DB
	redis    *redis.Client
	auditLog *sandbox.AuditLog
}

func (d *dependencies) Close() {
	if d.auditLog != nil {
		_ = d.auditLog.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	var redisClient *redis.Client
	if cfg.IsStandardProfile() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		deps.redis = redisClient
	}

	reg := registry.New(logger)
	db, installIndex, err := openInstallIndex(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening install index: %w", err)
	}
	deps.db = db
	if installIndex != nil {
		if err := loadInstalledModules(ctx, reg, installIndex, logger); err != nil {
			logger.Warn("loading installed modules failed, continuing with an empty registry", "error", err)
		}
	}

	var decisionCache decision.Cache
	if cfg.IsStandardProfile() {
		decisionCache = decision.NewRedisCache(redisClient)
	}
	engine, err := decision.New(logger,
		decision.WithRules(decision.DefaultRules()),
		decision.WithL2Cache(decisionCache),
		decision.WithFallbackTier(domain.ModelTierBalance),
	)
	if err != nil {
		return nil, fmt.Errorf("building decision engine: %w", err)
	}

	loopDetector := guard.New(guard.Config{
		MaxModsPerWindow: cfg.Guard.MaxModsPerWindow,
		Window:           cfg.Guard.Window,
		CooldownDuration: cfg.Guard.CooldownDuration,
		LoopThreshold:    cfg.Guard.LoopThreshold,
	}, logger)

	policy := guard.DefaultPolicy()
	if cfg.Guard.MaxFileSize > 0 {
		policy.MaxFileSize = int(cfg.Guard.MaxFileSize)
	}
	modGuard := guard.NewModificationGuard(policy)

	q := queue.New(cfg.Queue.Capacity, logger)

	pipeline := safety.New(logger,
		[]safety.Gate{
			validators.StaticGate{},
			validators.SemanticGate{},
			validators.SecurityGate{},
			validators.PerformanceGate{},
			validators.ReversibilityGate{},
		},
		safety.WithCriticalFiles(cfg.Safety.CriticalFiles...),
		safety.WithAllowedPaths(cfg.Safety.AllowedPaths...),
		safety.WithFailFast(cfg.Safety.FailFast),
		safety.WithRequireAllGates(cfg.Safety.RequireAllGates),
		safety.WithDefaultGateTimeout(cfg.Safety.DefaultGateTimeout),
	)

	auditLog := sandbox.NewAuditLog(sandbox.Config{
		Capacity:  cfg.Sandbox.AuditCapacity,
		FilePath:  cfg.Sandbox.AuditFilePath,
	}, logger)
	deps.auditLog = auditLog

	builder := &orchestrator.DefaultBuilder{
		Specs:  specsource.NewFilesystemSpecSource(cfg.Storage.ModuleRoot, ".md"),
		Reader: orchestrator.NewOSFileReader(""),
	}
	if cfg.LLM.Enabled {
		llmPort := llmclient.New(llmclient.Config{
			BaseURL:      cfg.LLM.BaseURL,
			APIKey:       cfg.LLM.APIKey,
			Model:        cfg.LLM.Model,
			Timeout:      cfg.LLM.Timeout,
			MaxRetries:   cfg.LLM.MaxRetries,
			RetryDelay:   time.Second,
			RetryBackoff: 2.0,
		}, logger)
		builder.LLM = ports.NewBreakerLlmPort(llmPort, ports.BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		})
	}

	orchCfg := orchestrator.DefaultConfig()
	if cfg.App.MaxWorkers > 0 {
		orchCfg.Workers = cfg.App.MaxWorkers
	}
	orch := orchestrator.New(orchCfg, loopDetector, engine, q, pipeline, builder, logger,
		orchestrator.WithModificationGuard(modGuard),
		orchestrator.WithFileWriter(orchestrator.NewOSFileWriter("")),
		orchestrator.WithAuditSink(sandbox.PortsAuditSink{Log: auditLog}),
	)
	deps.orch = orch

	logger.Info("registry populated", "modules", len(reg.List()))
	return deps, nil
}

// openInstallIndex opens the profile-appropriate database connection
// and wraps it in the matching InstallIndex backend. It returns a nil
// index (not an error) when the underlying database is unreachable,
// so a fresh deployment can still start with an empty registry.
func openInstallIndex(ctx context.Context, cfg *config.Config) (*sql.DB, registry.InstallIndex, error) {
	if cfg.IsLiteProfile() {
		db, err := sql.Open("sqlite", cfg.Storage.FilesystemPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite install index: %w", err)
		}
		idx, err := registry.NewSQLiteInstallIndex(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("initializing sqlite install index: %w", err)
		}
		return db, idx, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres install index: %w", err)
	}
	idx, err := registry.NewPostgresInstallIndex(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("initializing postgres install index: %w", err)
	}
	return db, idx, nil
}

// loadInstalledModules replays every persisted install record into the
// in-memory registry so it reflects what's actually on disk at boot.
func loadInstalledModules(ctx context.Context, reg *registry.Registry, idx registry.InstallIndex, logger *slog.Logger) error {
	installed, err := idx.All(ctx)
	if err != nil {
		return fmt.Errorf("listing installed modules: %w", err)
	}
	for _, im := range installed {
		manifest, err := registry.LoadManifest(im.ManifestPath)
		if err != nil {
			logger.Warn("skipping module with unreadable manifest", "module", im.ID, "error", err)
			continue
		}
		if err := reg.Register(manifest); err != nil {
			logger.Warn("skipping module that failed registration", "module", im.ID, "error", err)
		}
	}
	return nil
}
