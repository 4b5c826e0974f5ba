// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"converse-relay/internal/config"
	"converse-relay/internal/domain/ports/repository"
	"converse-relay/internal/infra/adapters/ondemand"
	"converse-relay/internal/infra/logging"
	"converse-relay/internal/infra/memstore"
	"converse-relay/internal/infra/metrics"
	red "converse-relay/internal/infra/redis"
	"converse-relay/internal/infra/scheduler"
	"converse-relay/internal/infra/security"
	"converse-relay/internal/infra/web"
	"converse-relay/internal/infra/worker"
	"converse-relay/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (verbose console logs, unredacted messages)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Stores ----
	results, sessions, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer closeStore()

	// ---- Upstream clients ----
	opts := ondemand.OptionsFromConfig(cfg, logger)
	chat := ondemand.NewChatClient(opts)
	workflow := ondemand.NewWorkflowClient(opts)
	speech := ondemand.NewSpeechClient(opts)
	if ondemand.IsPlaceholder(cfg.OnDemand.APIKey) {
		logger.Warn().Msg("ONDEMAND_API_KEY not set: chat replies are mocked and TTS falls back to the browser")
	}
	if ondemand.IsPlaceholder(cfg.Workflow.ID) {
		logger.Warn().Msg("WORKFLOW_ID not set: workflow enrichment disabled")
	}

	// ---- Worker pool ----
	pool := worker.NewPool(cfg.Worker.Count, cfg.Worker.Queue, logger)
	pool.Start(ctx)

	// ---- Use case ----
	turns := usecase.NewTurnUseCase(results, sessions, chat, workflow, pool, logger, usecase.TurnOptions{
		TurnTimeout: cfg.Worker.TurnTimeout,
		Dev:         cfg.Runtime.Dev,
	})

	// ---- HTTP server ----
	webOpts := web.Options{AllowedOrigin: cfg.Server.AllowedOrigin}
	if cfg.Metrics.Enabled {
		webOpts.MetricsPath = cfg.Metrics.Path
		webOpts.Metrics = metrics.Handler()
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           web.NewServer(turns, speech, logger, webOpts).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("store", cfg.Store.Backend).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Let accepted turns record their outcome before the stores close.
	pool.Stop()
	cancel()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.ResultStore, repository.SessionStore, func(), error) {
	if cfg.Store.Backend != "redis" {
		results := memstore.NewResultStore()
		if cfg.Store.ResultRetention <= 0 {
			return results, memstore.NewSessionStore(), func() {}, nil
		}
		sweeper := scheduler.NewScheduler(cfg.Store.SweepInterval, cfg.Store.ResultRetention, results, logger)
		sweeper.Start(ctx)
		return results, memstore.NewSessionStore(), sweeper.Stop, nil
	}

	var sealer red.Sealer
	if cfg.Redis.SessionSecret != "" {
		ts, err := security.NewTokenSealer(cfg.Redis.SessionSecret)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("session sealer: %w", err)
		}
		sealer = ts
	} else {
		logger.Warn().Msg("SESSION_SECRET not set: session tokens are cached in redis unencrypted")
	}
	cli, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info().Msg("using redis-backed result and session stores")
	closeFn := func() {
		if err := cli.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close")
		}
	}
	return red.NewResultStore(cli), red.NewSessionStore(cli, sealer), closeFn, nil
}
