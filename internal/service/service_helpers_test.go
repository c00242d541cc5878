package service

import (
	"context"
	"image"
	"image/color"
	"os"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/platform/fake"
)

func TestMain(m *testing.M) {
	// Initialize logger
	cfg := config.NewDefaultConfig()
	observability.InitializeLogger(cfg.Logger())

	exitCode := m.Run()

	observability.Sync()
	os.Exit(exitCode)
}

const gameWindow schemas.WindowID = 42

var gameRect = schemas.Rect{Left: 100, Top: 50, Right: 500, Bottom: 350}

// testConfig returns defaults tuned for fast, hermetic tests.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.StorageCfg.DataDir = t.TempDir()
	cfg.MatcherCfg.WatchTemplates = false
	cfg.EngineCfg.AutoInterval = 10 * time.Millisecond
	cfg.EngineCfg.AutoMinInterval = 5 * time.Millisecond
	cfg.EngineCfg.SnapInterval = 10 * time.Millisecond
	cfg.EngineCfg.SnapMinInterval = 5 * time.Millisecond
	cfg.EngineCfg.RectRetryDelay = 5 * time.Millisecond
	cfg.EngineCfg.PressDelay = time.Millisecond
	cfg.EngineCfg.PointGap = time.Millisecond
	cfg.EngineCfg.StopTimeout = 2 * time.Second
	return cfg
}

// patterned returns an image whose pixels vary in both directions.
func patterned(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*7 + y*13) % 256)
			img.Set(x, y, color.RGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	return img
}

func newDesktop() *fake.Desktop {
	desk := fake.New()
	desk.Add(fake.Window{
		ID:      gameWindow,
		Title:   "Game",
		PID:     7,
		Rect:    gameRect,
		Content: patterned(gameRect.Width(), gameRect.Height()),
	})
	return desk
}

func newComponents(t *testing.T) (*Components, *fake.Desktop) {
	t.Helper()
	desk := newDesktop()
	comps, err := NewComponentFactoryWithDesktop(desk).Create(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(comps.Shutdown)
	return comps, desk
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func execute(t *testing.T, c *Controller, name string, params interface{}) Result {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	return c.Execute(context.Background(), Command{Name: name, Params: raw})
}

func mustOK(t *testing.T, res Result) interface{} {
	t.Helper()
	require.True(t, res.Success, "command failed: %s", res.Error)
	return res.Data
}
