// File: internal/service/controller.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/engine"
	"github.com/xkilldash9x/snapclick/internal/matcher"
	"github.com/xkilldash9x/snapclick/internal/platform"
	"github.com/xkilldash9x/snapclick/internal/recorder"
	"github.com/xkilldash9x/snapclick/internal/store"
	"github.com/xkilldash9x/snapclick/internal/window"
)

// Command names accepted by Execute.
const (
	CmdDetectByPoint   = "detect-window-by-point"
	CmdDetectByTitle   = "detect-window-by-title"
	CmdDetectByPID     = "detect-window-by-pid"
	CmdComputeOffset   = "compute-offset"
	CmdCaptureWindow   = "capture-window"
	CmdStartTask       = "start-task"
	CmdStopTask        = "stop-task"
	CmdStartDefault    = "start-default"
	CmdStopDefault     = "stop-default"
	CmdListTasks       = "list-tasks"
	CmdListProfiles    = "list-profiles"
	CmdSaveProfile     = "save-profile"
	CmdDeleteProfile   = "delete-profile"
	CmdLoadProfile     = "load-profile"
	CmdSaveSnapPoint   = "save-snap-point"
	CmdEditSnapPoint   = "edit-snap-point"
	CmdDeleteSnapPoint = "delete-snap-point"
	CmdGetSnapPoint    = "get-snap-point"
	CmdListSnapPoints  = "list-snap-points"
	CmdUpdateSnapSet   = "update-snap-settings"
	CmdStartRecorder   = "start-recorder"
	CmdStopRecorder    = "stop-recorder"
)

// Command is one request to the command surface.
type Command struct {
	Name   string          `json:"command"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Result is the uniform reply of every command.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data interface{}) Result { return Result{Success: true, Data: data} }

// Fail turns err into a failed Result with a short reason.
func Fail(err error) Result { return Result{Success: false, Error: err.Error()} }

type handler func(ctx context.Context, params []byte) (interface{}, error)

// Deps bundles what the Controller drives.
type Deps struct {
	Resolver   *window.Resolver
	Mapper     *window.Mapper
	Capturer   platform.Capturer
	Supervisor *engine.Supervisor
	Recorder   *recorder.Recorder
	Profiles   schemas.ProfileRepository
	WorkingSet *store.WorkingSetStore
	Templates  *matcher.TemplateStore
}

// Controller is the command surface. Every operation reports failure as an
// error; Execute folds that into a Result.
type Controller struct {
	deps     Deps
	storage  config.StorageConfig
	sharpen  bool
	logger   *zap.Logger
	now      func() time.Time
	handlers map[string]handler
}

// NewController validates deps and builds the command table.
func NewController(cfg config.Interface, deps Deps, logger *zap.Logger) (*Controller, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config cannot be nil")
	case deps.Resolver == nil:
		return nil, errors.New("resolver cannot be nil")
	case deps.Mapper == nil:
		return nil, errors.New("mapper cannot be nil")
	case deps.Capturer == nil:
		return nil, errors.New("capturer cannot be nil")
	case deps.Supervisor == nil:
		return nil, errors.New("supervisor cannot be nil")
	case deps.Recorder == nil:
		return nil, errors.New("recorder cannot be nil")
	case deps.Profiles == nil:
		return nil, errors.New("profile repository cannot be nil")
	case deps.WorkingSet == nil:
		return nil, errors.New("working set cannot be nil")
	case deps.Templates == nil:
		return nil, errors.New("template store cannot be nil")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}

	c := &Controller{
		deps:    deps,
		storage: cfg.Storage(),
		sharpen: cfg.Matcher().Sharpen,
		logger:  logger.Named("controller"),
		now:     time.Now,
	}
	c.handlers = map[string]handler{
		CmdDetectByPoint:   c.handleDetectByPoint,
		CmdDetectByTitle:   c.handleDetectByTitle,
		CmdDetectByPID:     c.handleDetectByPID,
		CmdComputeOffset:   c.handleComputeOffset,
		CmdCaptureWindow:   c.handleCaptureWindow,
		CmdStartTask:       c.handleStartTask,
		CmdStopTask:        c.handleStopTask,
		CmdStartDefault:    c.handleStartDefault,
		CmdStopDefault:     c.handleStopDefault,
		CmdListTasks:       c.handleListTasks,
		CmdListProfiles:    c.handleListProfiles,
		CmdSaveProfile:     c.handleSaveProfile,
		CmdDeleteProfile:   c.handleDeleteProfile,
		CmdLoadProfile:     c.handleLoadProfile,
		CmdSaveSnapPoint:   c.handleSaveSnapPoint,
		CmdEditSnapPoint:   c.handleEditSnapPoint,
		CmdDeleteSnapPoint: c.handleDeleteSnapPoint,
		CmdGetSnapPoint:    c.handleGetSnapPoint,
		CmdListSnapPoints:  c.handleListSnapPoints,
		CmdUpdateSnapSet:   c.handleUpdateSnapSettings,
		CmdStartRecorder:   c.handleStartRecorder,
		CmdStopRecorder:    c.handleStopRecorder,
	}
	return c, nil
}

// Commands lists every command name in sorted order.
func (c *Controller) Commands() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one command and never panics outward.
func (c *Controller) Execute(ctx context.Context, cmd Command) (res Result) {
	h, ok := c.handlers[strings.TrimSpace(cmd.Name)]
	if !ok {
		return Fail(fmt.Errorf("unknown command %q", cmd.Name))
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Command panicked.", zap.String("command", cmd.Name), zap.Any("panic", r), zap.Stack("stack"))
			res = Fail(fmt.Errorf("internal error while running %s", cmd.Name))
		}
	}()

	data, err := h(ctx, cmd.Params)
	if err != nil {
		c.logger.Debug("Command failed.", zap.String("command", cmd.Name), zap.Error(err))
		return Fail(err)
	}
	return OK(data)
}

func decode(params []byte, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return schemas.Invalid("params", err.Error())
	}
	return nil
}

// -- Window Operations --

type pointParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DetectByPoint resolves the top-level window under a screen point.
func (c *Controller) DetectByPoint(x, y float64) (schemas.WindowTarget, error) {
	return c.deps.Resolver.ByPoint(x, y)
}

// DetectByTitle resolves the first window whose title contains substring.
func (c *Controller) DetectByTitle(substring string) (schemas.WindowTarget, error) {
	return c.deps.Resolver.ByTitle(substring)
}

// DetectByPID resolves the first window owned by pid.
func (c *Controller) DetectByPID(pid int64) (schemas.WindowTarget, error) {
	return c.deps.Resolver.ByProcessID(pid)
}

// ComputeOffset converts a drop point into an offset relative to the window.
func (c *Controller) ComputeOffset(handle schemas.WindowID, x, y float64) (schemas.OffsetPoint, error) {
	if handle == 0 {
		return schemas.OffsetPoint{}, schemas.Invalid("handle", "is required")
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return schemas.OffsetPoint{}, schemas.Invalid("coordinates", "must be finite numbers")
	}
	p := schemas.ScreenPoint{X: int(math.Round(x)), Y: int(math.Round(y))}
	return c.deps.Mapper.ToClientOffset(handle, p)
}

func (c *Controller) handleDetectByPoint(_ context.Context, params []byte) (interface{}, error) {
	var p pointParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.DetectByPoint(p.X, p.Y)
}

func (c *Controller) handleDetectByTitle(_ context.Context, params []byte) (interface{}, error) {
	var p struct {
		Title string `json:"title"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.DetectByTitle(p.Title)
}

func (c *Controller) handleDetectByPID(_ context.Context, params []byte) (interface{}, error) {
	var p struct {
		PID int64 `json:"pid"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.DetectByPID(p.PID)
}

func (c *Controller) handleComputeOffset(_ context.Context, params []byte) (interface{}, error) {
	var p struct {
		Handle schemas.WindowID `json:"handle"`
		pointParams
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.ComputeOffset(p.Handle, p.X, p.Y)
}

// -- Task Operations --

// StartTask starts (or restarts) a task by id.
func (c *Controller) StartTask(ctx context.Context, spec schemas.TaskSpec) (schemas.TaskInfo, error) {
	return c.deps.Supervisor.Start(ctx, spec)
}

// StopTask stops a task; unknown ids succeed.
func (c *Controller) StopTask(id string, silent bool) error {
	if strings.TrimSpace(id) == "" {
		return schemas.Invalid("taskId", "is required")
	}
	return c.deps.Supervisor.Stop(id, silent)
}

// DefaultTaskParams overrides parts of the working set for the default task.
type DefaultTaskParams struct {
	Target   *schemas.WindowTarget `json:"targetWindow,omitempty"`
	Points   []schemas.ClickPoint  `json:"points,omitempty"`
	Interval *schemas.Millis       `json:"interval,omitempty"`
}

// StartDefault starts the reserved default task. Missing fields are taken
// from the snap working set.
func (c *Controller) StartDefault(ctx context.Context, p DefaultTaskParams) (schemas.TaskInfo, error) {
	ws, err := c.deps.WorkingSet.Load()
	if err != nil {
		return schemas.TaskInfo{}, err
	}
	spec := schemas.TaskSpec{TaskID: schemas.DefaultTaskID, Points: ws.Points, Interval: ws.Interval}
	if ws.Target != nil {
		spec.Target = *ws.Target
	}
	if p.Target != nil {
		spec.Target = *p.Target
	}
	if p.Points != nil {
		spec.Points = p.Points
	}
	if p.Interval != nil {
		spec.Interval = *p.Interval
	}
	if spec.Target.Handle == 0 {
		return schemas.TaskInfo{}, schemas.Invalid("targetWindow", "no target window selected")
	}
	return c.deps.Supervisor.Start(ctx, spec)
}

func (c *Controller) handleStartTask(ctx context.Context, params []byte) (interface{}, error) {
	var spec schemas.TaskSpec
	if err := decode(params, &spec); err != nil {
		return nil, err
	}
	return c.StartTask(ctx, spec)
}

type stopParams struct {
	TaskID string `json:"taskId"`
	Silent bool   `json:"silent"`
}

func (c *Controller) handleStopTask(_ context.Context, params []byte) (interface{}, error) {
	var p stopParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return nil, c.StopTask(p.TaskID, p.Silent)
}

func (c *Controller) handleStartDefault(ctx context.Context, params []byte) (interface{}, error) {
	var p DefaultTaskParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.StartDefault(ctx, p)
}

func (c *Controller) handleStopDefault(_ context.Context, params []byte) (interface{}, error) {
	var p stopParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return nil, c.StopTask(schemas.DefaultTaskID, p.Silent)
}

func (c *Controller) handleListTasks(context.Context, []byte) (interface{}, error) {
	return c.deps.Supervisor.List(), nil
}

// -- Recorder Operations --

// StartRecorder binds the recorder to target, replacing any active session.
func (c *Controller) StartRecorder(target schemas.WindowTarget) error {
	return c.deps.Recorder.Start(target)
}

// StopRecorder ends the active recording.
func (c *Controller) StopRecorder(silent bool) {
	c.deps.Recorder.Stop(silent)
}

func (c *Controller) handleStartRecorder(_ context.Context, params []byte) (interface{}, error) {
	var p struct {
		Target schemas.WindowTarget `json:"targetWindow"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := c.StartRecorder(p.Target); err != nil {
		return nil, err
	}
	return p.Target, nil
}

func (c *Controller) handleStopRecorder(_ context.Context, params []byte) (interface{}, error) {
	var p struct {
		Silent bool `json:"silent"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	c.StopRecorder(p.Silent)
	return nil, nil
}
