package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/dispatch"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/platform"
)

// -- Interfaces for Dependency Inversion --

// Window is the slice of the window system a task needs for liveness and geometry.
type Window interface {
	IsWindow(id schemas.WindowID) bool
	WindowRect(id schemas.WindowID) (schemas.Rect, error)
}

// Evaluator decides whether any of a point's match regions is present in a snapshot.
type Evaluator interface {
	Match(snapshot image.Image, regions []schemas.MatchRegion) (bool, error)
}

// Clicker delivers the click list of one tick.
type Clicker interface {
	Dispatch(ctx context.Context, id schemas.WindowID, points []schemas.OffsetPoint) (dispatch.Result, error)
}

// Deps bundles the collaborators shared by every task.
type Deps struct {
	Window    Window
	Capturer  platform.Capturer
	Evaluator Evaluator
	Clicker   Clicker
}

func (d Deps) validate() error {
	if d.Window == nil {
		return errors.New("window system cannot be nil")
	}
	if d.Capturer == nil {
		return errors.New("capturer cannot be nil")
	}
	if d.Evaluator == nil {
		return errors.New("evaluator cannot be nil")
	}
	if d.Clicker == nil {
		return errors.New("clicker cannot be nil")
	}
	return nil
}

// EffectiveInterval resolves the tick interval of a task. Tasks whose points
// carry match regions use the snap timings, all others the auto timings; a
// zero request takes the default and the result never drops below the minimum.
func EffectiveInterval(spec schemas.TaskSpec, cfg config.EngineConfig) time.Duration {
	def, floor := cfg.AutoInterval, cfg.AutoMinInterval
	if spec.Conditional() {
		def, floor = cfg.SnapInterval, cfg.SnapMinInterval
	}
	d := spec.Interval.Duration()
	if d <= 0 {
		d = def
	}
	return max(d, floor)
}

// Task is one automation loop bound to a single window and point list.
type Task struct {
	spec      schemas.TaskSpec
	runID     string
	interval  time.Duration
	cfg       config.EngineConfig
	deps      Deps
	logger    *zap.Logger
	throttle  *observability.Throttle
	sleep     func(ctx context.Context, d time.Duration) error
	startedAt time.Time

	mu    sync.Mutex
	state schemas.TaskState

	ticks  atomic.Uint64
	clicks atomic.Uint64

	cancel    context.CancelFunc
	done      chan struct{}
	requested atomic.Bool
}

func newTask(spec schemas.TaskSpec, runID string, cfg config.EngineConfig, deps Deps, logger *zap.Logger) *Task {
	logger = logger.With(zap.String("task_id", spec.TaskID), zap.String("run_id", runID))
	return &Task{
		spec:     spec,
		runID:    runID,
		interval: EffectiveInterval(spec, cfg),
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		throttle: observability.NewThrottle(logger, cfg.WarnInterval),
		sleep:    dispatch.Sleep,
		state:    schemas.TaskIdle,
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (t *Task) State() schemas.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) setState(s schemas.TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.state = s
}

// Info returns a point-in-time view of the task.
func (t *Task) Info() schemas.TaskInfo {
	return schemas.TaskInfo{
		TaskID:    t.spec.TaskID,
		RunID:     t.runID,
		State:     t.State().String(),
		Target:    t.spec.Target,
		Points:    len(t.spec.Points),
		Interval:  schemas.MillisOf(t.interval),
		StartedAt: t.startedAt,
		Ticks:     t.ticks.Load(),
		Clicks:    t.clicks.Load(),
	}
}

// run drives the loop until ctx is cancelled, the target disappears or
// captures keep failing. The returned state is terminal.
func (t *Task) run(ctx context.Context) (schemas.TaskState, error) {
	t.setState(schemas.TaskRunning)
	t.logger.Info("Task loop started.",
		zap.Uintptr("handle", uintptr(t.spec.Target.Handle)),
		zap.Duration("interval", t.interval),
		zap.Int("points", len(t.spec.Points)),
		zap.Bool("conditional", t.spec.Conditional()))

	handle := t.spec.Target.Handle
	captureFailures := 0

	for {
		if ctx.Err() != nil {
			return t.finish(schemas.TaskStopped, nil)
		}

		if !t.deps.Window.IsWindow(handle) {
			return t.finish(schemas.TaskTargetLost, schemas.ErrTargetLost)
		}

		if _, err := t.deps.Window.WindowRect(handle); err != nil {
			t.throttle.Warn("rect", "Window rectangle unreadable, retrying.", zap.Error(err))
			if t.sleep(ctx, t.cfg.RectRetryDelay) != nil {
				return t.finish(schemas.TaskStopped, nil)
			}
			continue
		}

		clicks, err := t.tick(handle)
		if err != nil {
			captureFailures++
			t.throttle.Warn("capture", "Window capture failed.", zap.Error(err), zap.Int("consecutive", captureFailures))
			if captureFailures >= t.cfg.MaxCaptureFailures {
				return t.finish(schemas.TaskFailed, fmt.Errorf("capture failed %d times in a row: %w", captureFailures, err))
			}
		} else {
			captureFailures = 0
		}
		t.ticks.Add(1)

		if len(clicks) > 0 {
			res, err := t.deps.Clicker.Dispatch(ctx, handle, clicks)
			t.clicks.Add(uint64(res.Clicked))
			if err != nil && ctx.Err() == nil {
				// A vanished window is picked up by the next liveness check.
				t.throttle.Warn("dispatch", "Click dispatch failed.", zap.Error(err))
			}
		}

		if t.sleep(ctx, t.interval) != nil {
			return t.finish(schemas.TaskStopped, nil)
		}
	}
}

func (t *Task) finish(s schemas.TaskState, err error) (schemas.TaskState, error) {
	t.setState(s)
	fields := []zap.Field{zap.String("state", s.String()), zap.Uint64("ticks", t.ticks.Load()), zap.Uint64("clicks", t.clicks.Load())}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	t.logger.Info("Task loop exited.", fields...)
	return s, err
}

// tick evaluates every point against a single snapshot and returns the
// offsets to click, in point order. The snapshot is only captured when a
// point carries match regions. A capture failure is returned alongside the
// unconditional points, which still fire.
func (t *Task) tick(handle schemas.WindowID) ([]schemas.OffsetPoint, error) {
	var (
		snapshot   image.Image
		captureErr error
	)
	if t.spec.Conditional() {
		img, err := t.deps.Capturer.CaptureWindow(handle)
		if err != nil {
			captureErr = err
		} else {
			snapshot = img
		}
	}

	clicks := make([]schemas.OffsetPoint, 0, len(t.spec.Points))
	for i, p := range t.spec.Points {
		if p.Unconditional() {
			clicks = append(clicks, p.OffsetPoint)
			continue
		}
		if snapshot == nil {
			continue
		}
		if t.evaluate(i, snapshot, p) {
			clicks = append(clicks, p.OffsetPoint)
		}
	}
	return clicks, captureErr
}

// evaluate isolates one point's match so that a failure, including a panic,
// counts as no match without affecting the other points.
func (t *Task) evaluate(index int, snapshot image.Image, p schemas.ClickPoint) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			t.throttle.Error(fmt.Sprintf("panic:%d", index), "Match evaluation panicked.",
				zap.Int("point", index), zap.Any("panic", r), zap.Stack("stack"))
			matched = false
		}
	}()

	ok, err := t.deps.Evaluator.Match(snapshot, p.Regions)
	if err != nil {
		var me *schemas.MatchError
		if errors.As(err, &me) {
			me.PointIndex = index
		}
		t.throttle.Warn(fmt.Sprintf("match:%d", index), "Match evaluation failed.", zap.Int("point", index), zap.Error(err))
	}
	return ok
}
