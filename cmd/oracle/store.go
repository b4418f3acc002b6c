package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/praptisharma28/consciousness-oracle/internal/config"
	"github.com/praptisharma28/consciousness-oracle/internal/responses"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/internal/storage/memory"
	"github.com/praptisharma28/consciousness-oracle/internal/storage/postgres"
	"github.com/praptisharma28/consciousness-oracle/internal/storage/sqlite"
)

// openStore opens the backend named by cfg.Storage.Engine.
func openStore(cfg *config.Config) (storage.EntityStore, error) {
	switch cfg.Storage.Engine {
	case config.EngineSQLite:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := sqlite.NewEntityStore(cfg.Storage.SQLitePath())
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.EnginePostgres:
		store, err := postgres.NewEntityStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.EngineMemory:
		store, err := memory.NewStore()
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

func breakerConfig(cfg *config.Config) storage.BreakerConfig {
	return storage.BreakerConfig{
		MaxFailures: cfg.Storage.BreakerMaxFailures,
		Cooldown:    cfg.Storage.BreakerCooldown,
		OpTimeout:   cfg.Storage.OpTimeout,
	}
}

// openResponses returns the built-in table, or the configured file with
// hot reload when enabled. The returned func releases the watcher.
func openResponses(cfg *config.Config, logger *slog.Logger) (responses.Provider, func(), error) {
	if cfg.Responses.File == "" {
		return responses.Default(), func() {}, nil
	}

	fp, err := responses.NewFileProvider(cfg.Responses.File, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Responses.Watch {
		if err := fp.Watch(); err != nil {
			return nil, nil, err
		}
	}
	return fp, fp.Stop, nil
}
