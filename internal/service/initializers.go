// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/matcher"
	"github.com/xkilldash9x/snapclick/internal/store"
)

// newPool is swapped in tests.
var newPool = func(ctx context.Context, url string) (store.DBPool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	return pool, nil
}

// InitializeProfileRepository opens the profile store selected by
// storage.backend. The returned repository owns its resources; Close it.
func InitializeProfileRepository(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.ProfileRepository, error) {
	switch backend := cfg.Storage().Backend; backend {
	case config.BackendFile, "":
		path := cfg.Storage().ProfilesFile()
		logger.Info("Using file profile store.", zap.String("path", path))
		repo, err := store.NewFileStore(path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize profile store: %w", err)
		}
		return repo, nil

	case config.BackendPostgres:
		if cfg.Database().URL == "" {
			return nil, fmt.Errorf("database URL is not configured (hint: check SNAPCLICK_DATABASE_URL)")
		}
		logger.Info("Using PostgreSQL profile store.")
		pool, err := newPool(ctx, cfg.Database().URL)
		if err != nil {
			return nil, err
		}
		repo, err := store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize profile store: %w", err)
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

// EnsureDataDirs creates the snapshot and template directories.
func EnsureDataDirs(cfg config.StorageConfig) error {
	for _, dir := range []string{cfg.DataDir, cfg.SnapshotDir(), cfg.TemplateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// StartTemplateWatcher keeps the template cache coherent with edits made on
// disk by other processes. It manages its lifecycle using the provided
// WaitGroup and stops when ctx is cancelled.
func StartTemplateWatcher(ctx context.Context, wg *sync.WaitGroup, templates *matcher.TemplateStore, dir string, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer logger.Debug("Template watcher shut down.")

		if err := templates.Watch(ctx, dir); err != nil {
			// The cache still works; it just won't notice outside edits.
			logger.Warn("Template watcher unavailable.", zap.String("dir", dir), zap.Error(err))
		}
	}()
}
