package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/praptisharma28/consciousness-oracle/internal/config"
	"github.com/praptisharma28/consciousness-oracle/internal/engine"
	"github.com/praptisharma28/consciousness-oracle/internal/logging"
	"github.com/praptisharma28/consciousness-oracle/internal/random"
	"github.com/praptisharma28/consciousness-oracle/internal/server"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/web/handlers"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and websocket feed",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := openStore(cfg)
	if err != nil {
		return err
	}
	store := storage.NewGuarded(raw, breakerConfig(cfg), logger)
	defer store.Close()

	seeded, err := storage.SeedIfEmpty(ctx, store)
	if err != nil {
		return err
	}
	if seeded {
		logger.Info("seeded starting entities")
	}

	replies, closeReplies, err := openResponses(cfg, logger)
	if err != nil {
		return err
	}
	defer closeReplies()

	rng, err := random.New()
	if err != nil {
		return err
	}

	hub := handlers.NewWebSocketHub(cfg.Security.AllowedOrigins, logger)
	eng, err := engine.NewMutationEngine(engine.Config{
		Store:     store,
		Responses: replies,
		Random:    rng,
		Publisher: hub,
		Logger:    logger,

		BroadcastTimeout: cfg.Engine.BroadcastTimeout,
	})
	if err != nil {
		return err
	}

	addr, serverDone, err := server.Start(ctx, cfg, server.Deps{
		Mutator: eng,
		Query:   eng.Query(),
		Hub:     hub,
		Store:   store,
		Breaker: store,
		Version: version,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	logger.Info("oracle running", "url", "http://"+addr, "storage", cfg.Storage.Engine)

	var scheduler *engine.DriftScheduler
	if cfg.Drift.Enabled {
		scheduler = engine.NewDriftScheduler(eng, cfg.Drift.Interval, logger)
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("drift scheduler exited", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	if scheduler != nil {
		scheduler.Stop()
	}
	// In-flight requests still need the store, so wait for the drain
	// before the deferred Close runs.
	<-serverDone
	return nil
}
