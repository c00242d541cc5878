package service

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/store"
)

func swapPool(t *testing.T, fn func(ctx context.Context, url string) (store.DBPool, error)) {
	t.Helper()
	orig := newPool
	newPool = fn
	t.Cleanup(func() { newPool = orig })
}

func TestInitializeProfileRepository(t *testing.T) {
	t.Run("file backend", func(t *testing.T) {
		cfg := testConfig(t)

		repo, err := InitializeProfileRepository(context.Background(), cfg, zap.NewNop())

		require.NoError(t, err)
		assert.IsType(t, &store.FileStore{}, repo)
		assert.NoError(t, repo.Close())
	})

	t.Run("postgres backend", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		mockPool.ExpectPing()
		mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS profiles").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		var gotURL string
		swapPool(t, func(_ context.Context, url string) (store.DBPool, error) {
			gotURL = url
			return mockPool, nil
		})
		cfg := testConfig(t)
		cfg.StorageCfg.Backend = config.BackendPostgres
		cfg.DatabaseCfg.URL = "postgres://snap@localhost/snap"

		repo, err := InitializeProfileRepository(context.Background(), cfg, zap.NewNop())

		require.NoError(t, err)
		assert.IsType(t, &store.Store{}, repo)
		assert.Equal(t, "postgres://snap@localhost/snap", gotURL)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("postgres unreachable", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		mockPool.ExpectPing().WillReturnError(errors.New("connection refused"))
		swapPool(t, func(context.Context, string) (store.DBPool, error) { return mockPool, nil })

		cfg := testConfig(t)
		cfg.StorageCfg.Backend = config.BackendPostgres
		cfg.DatabaseCfg.URL = "postgres://snap@localhost/snap"

		_, err = InitializeProfileRepository(context.Background(), cfg, zap.NewNop())
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("pool creation error", func(t *testing.T) {
		swapPool(t, func(context.Context, string) (store.DBPool, error) { return nil, errors.New("bad dsn") })
		cfg := testConfig(t)
		cfg.StorageCfg.Backend = config.BackendPostgres
		cfg.DatabaseCfg.URL = "::"

		_, err := InitializeProfileRepository(context.Background(), cfg, zap.NewNop())
		assert.EqualError(t, err, "bad dsn")
	})

	t.Run("unsupported backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.StorageCfg.Backend = "redis"

		_, err := InitializeProfileRepository(context.Background(), cfg, zap.NewNop())
		assert.EqualError(t, err, "unsupported storage backend: redis")
	})
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := testConfig(t)

	require.NoError(t, EnsureDataDirs(cfg.Storage()))
	require.NoError(t, EnsureDataDirs(cfg.Storage()), "existing directories are fine")

	assert.DirExists(t, cfg.Storage().SnapshotDir())
	assert.DirExists(t, cfg.Storage().TemplateDir())
}
