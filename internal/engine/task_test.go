package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/dispatch"
	"github.com/xkilldash9x/snapclick/internal/mocks"
	"github.com/xkilldash9x/snapclick/internal/platform/fake"
)

const hwnd schemas.WindowID = 42

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		AutoInterval:       10 * time.Millisecond,
		AutoMinInterval:    5 * time.Millisecond,
		SnapInterval:       10 * time.Millisecond,
		SnapMinInterval:    5 * time.Millisecond,
		RectRetryDelay:     5 * time.Millisecond,
		PressDelay:         time.Millisecond,
		PointGap:           time.Millisecond,
		MaxCaptureFailures: 3,
		WarnInterval:       time.Second,
		StopTimeout:        2 * time.Second,
	}
}

func newDesktop() *fake.Desktop {
	d := fake.New()
	d.Add(fake.Window{ID: hwnd, Title: "Game", PID: 9, Rect: schemas.Rect{Left: 0, Top: 0, Right: 200, Bottom: 200}})
	return d
}

func testDeps(t *testing.T, d *fake.Desktop, ev Evaluator) Deps {
	t.Helper()
	disp, err := dispatch.New(d, d, zap.NewNop(), time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	return Deps{Window: d, Capturer: d, Evaluator: ev, Clicker: disp}
}

func region(path string) []schemas.MatchRegion {
	return []schemas.MatchRegion{{Selection: schemas.SelectionRect{Width: 4, Height: 4}, TemplatePath: path}}
}

func taskSpec(points ...schemas.ClickPoint) schemas.TaskSpec {
	return schemas.TaskSpec{TaskID: "t1", Target: schemas.WindowTarget{Handle: hwnd, Title: "Game"}, Points: points}
}

func point(x, y int, regions []schemas.MatchRegion) schemas.ClickPoint {
	return schemas.ClickPoint{OffsetPoint: schemas.OffsetPoint{OffsetX: x, OffsetY: y}, Regions: regions}
}

// stopAfter replaces the task's sleep so that the loop is cancelled once the
// n-th interval sleep is reached. Durations of every sleep are recorded.
func stopAfter(task *Task, n int, cancel context.CancelFunc) *[]time.Duration {
	var slept []time.Duration
	task.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if d == task.interval && task.ticks.Load() >= uint64(n) {
			cancel()
		}
		return ctx.Err()
	}
	return &slept
}

func TestEffectiveInterval(t *testing.T) {
	cfg := config.EngineConfig{
		AutoInterval: time.Second, AutoMinInterval: 200 * time.Millisecond,
		SnapInterval: 2 * time.Second, SnapMinInterval: 500 * time.Millisecond,
	}
	auto := taskSpec(point(1, 1, nil))
	snap := taskSpec(point(1, 1, region("a.png")))

	tests := []struct {
		name      string
		spec      schemas.TaskSpec
		requested schemas.Millis
		expected  time.Duration
	}{
		{"auto default", auto, 0, time.Second},
		{"auto clamped to minimum", auto, 50, 200 * time.Millisecond},
		{"auto requested", auto, 3000, 3 * time.Second},
		{"snap default", snap, 0, 2 * time.Second},
		{"snap clamped to minimum", snap, 100, 500 * time.Millisecond},
		{"snap requested", snap, 750, 750 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.Interval = tt.requested
			assert.Equal(t, tt.expected, EffectiveInterval(tt.spec, cfg))
		})
	}
}

func TestTask_UnconditionalPointsFireEveryTickWithoutCapture(t *testing.T) {
	// -- Setup --
	d := newDesktop()
	ev := new(mocks.MockEvaluator)
	task := newTask(taskSpec(point(10, 20, nil)), "run", testEngineConfig(), testDeps(t, d, ev), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAfter(task, 3, cancel)

	// -- Execution --
	state, err := task.run(ctx)

	// -- Assertions --
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskStopped, state)
	assert.Equal(t, uint64(3), task.ticks.Load())
	assert.Equal(t, uint64(3), task.clicks.Load())
	assert.Len(t, d.Events(), 6)
	assert.Zero(t, d.Captures(hwnd), "no capture without match regions")
	ev.AssertNotCalled(t, "Match", mock.Anything, mock.Anything)
}

func TestTask_SingleCapturePerTickAndListOrder(t *testing.T) {
	// -- Setup --
	d := newDesktop()
	hit, miss := region("hit.png"), region("miss.png")
	ev := new(mocks.MockEvaluator)
	ev.On("Match", mock.Anything, hit).Return(true, nil)
	ev.On("Match", mock.Anything, miss).Return(false, &schemas.MatchError{PointIndex: -1, Err: errors.New("no template")})

	task := newTask(taskSpec(point(1, 1, miss), point(2, 2, hit), point(3, 3, nil)), "run", testEngineConfig(), testDeps(t, d, ev), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAfter(task, 2, cancel)

	// -- Execution --
	state, err := task.run(ctx)

	// -- Assertions --
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskStopped, state)
	assert.Equal(t, 2, d.Captures(hwnd), "one snapshot per tick")
	ev.AssertNumberOfCalls(t, "Match", 4)

	events := d.Events()
	require.Len(t, events, 8)
	var xs []int
	for _, e := range events {
		if e.Down {
			xs = append(xs, e.X)
		}
	}
	assert.Equal(t, []int{2, 3, 2, 3}, xs)
}

func TestTask_PanickingEvaluationCountsAsNoMatch(t *testing.T) {
	// -- Setup --
	d := newDesktop()
	core, logs := observer.New(zap.WarnLevel)
	bad, good := region("bad.png"), region("good.png")
	ev := new(mocks.MockEvaluator)
	ev.On("Match", mock.Anything, bad).Run(func(mock.Arguments) { panic("corrupt template") }).Return(false, nil)
	ev.On("Match", mock.Anything, good).Return(true, nil)

	task := newTask(taskSpec(point(1, 1, bad), point(2, 2, good)), "run", testEngineConfig(), testDeps(t, d, ev), zap.New(core))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAfter(task, 1, cancel)

	// -- Execution --
	state, _ := task.run(ctx)

	// -- Assertions --
	assert.Equal(t, schemas.TaskStopped, state)
	events := d.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].X)
	assert.Equal(t, 1, logs.FilterMessage("Match evaluation panicked.").Len())
}

func TestTask_ClosedWindowIsTargetLost(t *testing.T) {
	// -- Setup --
	d := newDesktop()
	task := newTask(taskSpec(point(1, 1, nil)), "run", testEngineConfig(), testDeps(t, d, new(mocks.MockEvaluator)), zap.NewNop())
	task.sleep = func(ctx context.Context, _ time.Duration) error {
		d.Close(hwnd)
		return nil
	}

	// -- Execution --
	state, err := task.run(context.Background())

	// -- Assertions --
	assert.Equal(t, schemas.TaskTargetLost, state)
	assert.ErrorIs(t, err, schemas.ErrTargetLost)
	assert.Equal(t, schemas.TaskTargetLost, task.State())
	assert.Equal(t, uint64(1), task.ticks.Load())
}

func TestTask_UnreadableRectIsRetried(t *testing.T) {
	// -- Setup --
	d := newDesktop()
	d.FailRect(hwnd, 2)
	cfg := testEngineConfig()
	task := newTask(taskSpec(point(1, 1, nil)), "run", cfg, testDeps(t, d, new(mocks.MockEvaluator)), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slept := stopAfter(task, 1, cancel)

	// -- Execution --
	state, err := task.run(ctx)

	// -- Assertions --
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskStopped, state)
	assert.Equal(t, []time.Duration{cfg.RectRetryDelay, cfg.RectRetryDelay, task.interval}, *slept)
	assert.Len(t, d.Events(), 2)
}

func TestTask_RepeatedCaptureFailureFails(t *testing.T) {
	// -- Setup --
	d := newDesktop()
	d.FailCapture(hwnd, errors.New("access denied"))
	ev := new(mocks.MockEvaluator)
	task := newTask(taskSpec(point(1, 1, region("a.png")), point(5, 5, nil)), "run", testEngineConfig(), testDeps(t, d, ev), zap.NewNop())
	task.sleep = func(context.Context, time.Duration) error { return nil }

	// -- Execution --
	state, err := task.run(context.Background())

	// -- Assertions --
	assert.Equal(t, schemas.TaskFailed, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	ev.AssertNotCalled(t, "Match", mock.Anything, mock.Anything)

	// The unconditional point fired on every failed tick before the last one.
	assert.Len(t, d.Events(), 2*(testEngineConfig().MaxCaptureFailures-1))
}

func TestTask_CaptureRecoveryResetsFailureCount(t *testing.T) {
	d := newDesktop()
	d.FailCapture(hwnd, errors.New("busy"))
	ev := new(mocks.MockEvaluator)
	ev.On("Match", mock.Anything, mock.Anything).Return(false, nil)
	task := newTask(taskSpec(point(1, 1, region("a.png"))), "run", testEngineConfig(), testDeps(t, d, ev), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task.sleep = func(ctx context.Context, _ time.Duration) error {
		switch task.ticks.Load() {
		case 2:
			d.FailCapture(hwnd, nil)
		case 3:
			d.FailCapture(hwnd, errors.New("busy"))
		case 5:
			cancel()
		}
		return ctx.Err()
	}

	state, err := task.run(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskStopped, state, "two failures, a success, then two more never reach the limit")
}

func TestTask_Info(t *testing.T) {
	task := newTask(taskSpec(point(1, 1, nil), point(2, 2, nil)), "run-1", testEngineConfig(), Deps{}, zap.NewNop())

	info := task.Info()
	assert.Equal(t, "t1", info.TaskID)
	assert.Equal(t, "run-1", info.RunID)
	assert.Equal(t, "idle", info.State)
	assert.Equal(t, 2, info.Points)
	assert.Equal(t, schemas.Millis(10), info.Interval)
}
