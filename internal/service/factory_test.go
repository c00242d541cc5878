package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/snapclick/internal/config"
)

func TestFactory_CreateWiresEveryComponent(t *testing.T) {
	// -- Setup --
	cfg := testConfig(t)
	cfg.MatcherCfg.WatchTemplates = true
	desk := newDesktop()

	// -- Execution --
	comps, err := NewComponentFactoryWithDesktop(desk).Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	// -- Assertions --
	assert.Same(t, desk, comps.Desktop)
	assert.NotNil(t, comps.Bus)
	assert.NotNil(t, comps.Templates)
	assert.NotNil(t, comps.Matcher)
	assert.NotNil(t, comps.Dispatcher)
	assert.NotNil(t, comps.Resolver)
	assert.NotNil(t, comps.Mapper)
	assert.NotNil(t, comps.Supervisor)
	assert.NotNil(t, comps.Recorder)
	assert.NotNil(t, comps.Profiles)
	assert.NotNil(t, comps.WorkingSet)
	assert.NotNil(t, comps.Controller)
	assert.DirExists(t, cfg.Storage().SnapshotDir())
	assert.DirExists(t, cfg.Storage().TemplateDir())

	done := make(chan struct{})
	go func() {
		comps.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.True(t, timedWait(comps.watchWG, time.Second), "template watcher exits on shutdown")
}

func TestFactory_CreateFailures(t *testing.T) {
	f := NewComponentFactoryWithDesktop(newDesktop())

	_, err := f.Create(context.Background(), nil, zap.NewNop())
	assert.EqualError(t, err, "config cannot be nil")

	_, err = f.Create(context.Background(), testConfig(t), nil)
	assert.EqualError(t, err, "logger cannot be nil")

	cfg := testConfig(t)
	cfg.StorageCfg.Backend = config.BackendPostgres
	cfg.DatabaseCfg.URL = ""
	_, err = f.Create(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "SNAPCLICK_DATABASE_URL")
}
