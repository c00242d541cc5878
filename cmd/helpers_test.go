// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/platform/fake"
	"github.com/xkilldash9x/snapclick/internal/service"
)

func TestMain(m *testing.M) {
	// Commands initialize the logger only once per process; keep it quiet.
	observability.InitializeLogger(config.LoggerConfig{Level: "error", Format: "console", ServiceName: "test"})
	code := m.Run()
	observability.Sync()
	os.Exit(code)
}

// MockComponentFactory mocks service.ComponentFactory.
type MockComponentFactory struct {
	mock.Mock
}

func (m *MockComponentFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*service.Components, error) {
	args := m.Called(ctx, cfg, logger)
	comps, _ := args.Get(0).(*service.Components)
	return comps, args.Error(1)
}

const gameWindow schemas.WindowID = 42

var gameRect = schemas.Rect{Left: 100, Top: 50, Right: 500, Bottom: 350}

func newDesktop() *fake.Desktop {
	desk := fake.New()
	desk.Add(fake.Window{ID: gameWindow, Title: "Game", PID: 7, Rect: gameRect})
	return desk
}

// hermeticEnv points the configuration at a temp data dir with fast engine
// timings and returns the dir.
func hermeticEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for k, v := range map[string]string{
		"SNAPCLICK_STORAGE_DATA_DIR":         dir,
		"SNAPCLICK_STORAGE_BACKEND":          "file",
		"SNAPCLICK_MATCHER_WATCH_TEMPLATES":  "false",
		"SNAPCLICK_ENGINE_AUTO_INTERVAL":     "20ms",
		"SNAPCLICK_ENGINE_AUTO_MIN_INTERVAL": "10ms",
		"SNAPCLICK_ENGINE_PRESS_DELAY":       "1ms",
		"SNAPCLICK_ENGINE_POINT_GAP":         "1ms",
	} {
		t.Setenv(k, v)
	}
	return dir
}

// runCLI executes a fresh root command and returns what it wrote to stdout.
func runCLI(ctx context.Context, t *testing.T, factory service.ComponentFactory, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}
