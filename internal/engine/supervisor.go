package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/events"
)

// Supervisor owns every running Task, keyed by task id. All lifecycle
// mutations go through its methods.
type Supervisor struct {
	cfg    config.EngineConfig
	deps   Deps
	pub    events.Publisher
	logger *zap.Logger

	// startMu serializes Start so that the stop-then-register sequence for
	// one id cannot interleave with another Start of the same id.
	startMu sync.Mutex

	stateLock sync.RWMutex
	tasks     map[string]*Task
	wg        sync.WaitGroup
}

// NewSupervisor creates a Supervisor publishing lifecycle events to pub.
func NewSupervisor(cfg config.Interface, deps Deps, pub events.Publisher, logger *zap.Logger) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errors.New("event publisher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Supervisor{
		cfg:    cfg.Engine(),
		deps:   deps,
		pub:    pub,
		logger: logger.Named("supervisor"),
		tasks:  make(map[string]*Task),
	}, nil
}

func validateSpec(spec schemas.TaskSpec) error {
	if spec.TaskID == "" {
		return schemas.Invalid("taskId", "is required")
	}
	if spec.Target.Handle == 0 {
		return schemas.Invalid("targetWindow", "is required")
	}
	if len(spec.Points) == 0 {
		return schemas.Invalid("points", "at least one point is required")
	}
	if spec.Interval < 0 {
		return schemas.Invalid("interval", "must not be negative")
	}
	for i, p := range spec.Points {
		for j, r := range p.Regions {
			field := fmt.Sprintf("points[%d].selections[%d]", i, j)
			switch {
			case r.TemplatePath == "":
				return schemas.Invalid(field, "templateImagePath is required")
			case r.Selection.Left < 0 || r.Selection.Top < 0:
				return schemas.Invalid(field, "origin must not be negative")
			case r.Selection.Empty():
				return schemas.Invalid(field, "selection has zero area")
			}
		}
	}
	return nil
}

// Start launches a task. An existing task with the same id is stopped
// silently first, so at most one click sequence per id is ever active. The
// loop runs detached from ctx; only Stop, StopAll or a terminal condition
// ends it.
func (s *Supervisor) Start(ctx context.Context, spec schemas.TaskSpec) (schemas.TaskInfo, error) {
	if err := validateSpec(spec); err != nil {
		return schemas.TaskInfo{}, err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.Stop(spec.TaskID, true); err != nil {
		return schemas.TaskInfo{}, fmt.Errorf("failed to stop previous task %q: %w", spec.TaskID, err)
	}

	if !s.deps.Window.IsWindow(spec.Target.Handle) {
		return schemas.TaskInfo{}, fmt.Errorf("%w: handle %d", schemas.ErrTargetLost, spec.Target.Handle)
	}

	task := newTask(spec, uuid.NewString(), s.cfg, s.deps, s.logger)
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task.cancel = cancel
	task.startedAt = time.Now().UTC()

	// The started status goes out before the loop exists, so no terminal
	// status of this run can precede it.
	s.publish(spec.TaskID, schemas.TaskStatus{
		TaskID:  spec.TaskID,
		Running: true,
		Message: fmt.Sprintf("Task started with %d point(s) every %s.", len(spec.Points), task.interval),
		Type:    schemas.StatusSuccess,
	})

	s.stateLock.Lock()
	s.tasks[spec.TaskID] = task
	s.stateLock.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		state, err := task.run(taskCtx)
		close(task.done)
		s.finish(task, state, err)
	}()
	return task.Info(), nil
}

// Stop terminates the task with the given id, waiting for its loop to exit.
// Stopping an unknown id succeeds. Unless silent, exactly one stopped
// notification is emitted.
func (s *Supervisor) Stop(id string, silent bool) error {
	s.stateLock.Lock()
	task, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
		task.requested.Store(true)
	}
	s.stateLock.Unlock()

	var err error
	if ok {
		task.setState(schemas.TaskStopping)
		task.cancel()
		select {
		case <-task.done:
		case <-time.After(s.cfg.StopTimeout):
			err = fmt.Errorf("task %q did not exit within %s", id, s.cfg.StopTimeout)
			s.logger.Error("Task ignored cancellation.", zap.String("task_id", id), zap.Duration("timeout", s.cfg.StopTimeout))
		}
	}

	if !silent {
		s.publish(id, schemas.TaskStatus{
			TaskID:  id,
			Running: false,
			Message: "Task stopped.",
			Type:    schemas.StatusSuccess,
		})
	}
	return err
}

// finish runs on the task goroutine once the loop has returned.
func (s *Supervisor) finish(task *Task, state schemas.TaskState, err error) {
	id := task.spec.TaskID

	s.stateLock.Lock()
	if cur, ok := s.tasks[id]; ok && cur == task {
		delete(s.tasks, id)
	}
	s.stateLock.Unlock()

	// An explicit Stop reports for itself.
	if task.requested.Load() {
		return
	}

	status := schemas.TaskStatus{TaskID: id, Running: false}
	switch state {
	case schemas.TaskTargetLost:
		status.Message = "Target window was closed."
		status.Type = schemas.StatusError
		status.TargetLost = true
	case schemas.TaskFailed:
		status.Message = fmt.Sprintf("Task exited unexpectedly: %v", err)
		status.Type = schemas.StatusError
	default:
		status.Message = "Task stopped."
		status.Type = schemas.StatusSuccess
	}
	s.logger.Info("Task ended on its own.", zap.String("task_id", id), zap.String("state", state.String()))
	s.publish(id, status)
}

func (s *Supervisor) publish(id string, status schemas.TaskStatus) {
	t := schemas.EventItemStatus
	if id == schemas.DefaultTaskID {
		t = schemas.EventTaskStatus
	}
	if err := s.pub.Publish(t, status); err != nil {
		s.logger.Debug("Status event not delivered.", zap.String("task_id", id), zap.Error(err))
	}
}

// StopAll stops every task concurrently.
func (s *Supervisor) StopAll(silent bool) error {
	s.stateLock.RLock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.stateLock.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error { return s.Stop(id, silent) })
	}
	return g.Wait()
}

// Get returns a snapshot of one task.
func (s *Supervisor) Get(id string) (schemas.TaskInfo, bool) {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return schemas.TaskInfo{}, false
	}
	return task.Info(), true
}

// List returns snapshots of every task ordered by id.
func (s *Supervisor) List() []schemas.TaskInfo {
	s.stateLock.RLock()
	infos := make([]schemas.TaskInfo, 0, len(s.tasks))
	for _, task := range s.tasks {
		infos = append(infos, task.Info())
	}
	s.stateLock.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].TaskID < infos[j].TaskID })
	return infos
}

// Wait blocks until every task goroutine has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
