// Package recorder captures clicks the user makes on a target window so they
// can be saved as click points. It only observes; it never clicks.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/events"
	"github.com/xkilldash9x/snapclick/internal/platform"
	"github.com/xkilldash9x/snapclick/internal/window"
)

const defaultPollInterval = 50 * time.Millisecond

// Recorder binds a global pointer hook to one target window at a time.
type Recorder struct {
	ws     platform.WindowSystem
	hook   platform.PointerHook
	mapper *window.Mapper
	pub    events.Publisher
	cfg    config.RecorderConfig
	logger *zap.Logger

	// startMu serializes Start; mu guards only the session pointer so the
	// liveness watcher can clear it while Start waits for an old session.
	startMu sync.Mutex
	mu      sync.Mutex
	session *session
}

type session struct {
	target   schemas.WindowTarget
	ctx      context.Context
	cancel   context.CancelFunc
	unhook   func()
	done     chan struct{}
	errLimit *rate.Limiter
}

// close tears the session down and waits for its watcher to exit.
func (s *session) close() {
	s.cancel()
	s.unhook()
	<-s.done
}

// New creates a Recorder.
func New(ws platform.WindowSystem, hook platform.PointerHook, pub events.Publisher, cfg config.RecorderConfig, logger *zap.Logger) (*Recorder, error) {
	if ws == nil {
		return nil, errors.New("window system cannot be nil")
	}
	if hook == nil {
		return nil, errors.New("pointer hook cannot be nil")
	}
	if pub == nil {
		return nil, errors.New("event publisher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	mapper, err := window.NewMapper(ws)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBurst <= 0 {
		cfg.ErrorBurst = 1
	}
	return &Recorder{
		ws:     ws,
		hook:   hook,
		mapper: mapper,
		pub:    pub,
		cfg:    cfg,
		logger: logger.Named("recorder"),
	}, nil
}

// Start begins recording clicks on target. A recorder that is already active
// is stopped silently first.
func (r *Recorder) Start(target schemas.WindowTarget) error {
	if target.Handle == 0 {
		return schemas.Invalid("targetWindow", "is required")
	}

	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.mu.Lock()
	prev := r.session
	r.session = nil
	r.mu.Unlock()
	if prev != nil {
		prev.close()
		r.logger.Debug("Replaced active recording session.", zap.Uintptr("previous", uintptr(prev.target.Handle)))
	}

	if !r.ws.IsWindow(target.Handle) {
		return fmt.Errorf("%w: handle %d", schemas.ErrTargetLost, target.Handle)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		target:   target,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		errLimit: rate.NewLimiter(rate.Limit(r.cfg.ErrorRate), r.cfg.ErrorBurst),
	}

	unhook, err := r.hook.Install(func(ev platform.PointerEvent) { r.onPointer(s, ev) })
	if err != nil {
		cancel()
		return fmt.Errorf("failed to install pointer hook: %w", err)
	}
	s.unhook = unhook

	r.mu.Lock()
	r.session = s
	r.mu.Unlock()

	go r.watch(s)

	r.logger.Info("Recording started.", zap.Uintptr("handle", uintptr(target.Handle)), zap.String("title", target.Title))
	return nil
}

// Stop ends the active recording. Stopping when nothing is recorded succeeds.
// Unless silent, a stopped notification is emitted.
func (r *Recorder) Stop(silent bool) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	var target schemas.WindowTarget
	if s != nil {
		s.close()
		target = s.target
		r.logger.Info("Recording stopped.")
	}
	if !silent {
		r.publish(schemas.EventRecorderStopped, schemas.RecorderNotice{Message: "Recording stopped.", Target: target})
	}
}

// Active reports the bound target, if any.
func (r *Recorder) Active() (schemas.WindowTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return schemas.WindowTarget{}, false
	}
	return r.session.target, true
}

// watch polls the target's liveness and ends the session once it is gone.
func (r *Recorder) watch(s *session) {
	defer close(s.done)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if r.ws.IsWindow(s.target.Handle) {
				continue
			}
			r.mu.Lock()
			owned := r.session == s
			if owned {
				r.session = nil
			}
			r.mu.Unlock()
			if !owned {
				return
			}
			s.cancel()
			s.unhook()
			r.logger.Info("Target window closed, recording ended.", zap.Uintptr("handle", uintptr(s.target.Handle)))
			r.publish(schemas.EventRecorderInfo, schemas.RecorderNotice{
				Message: "Target window was closed. Recording stopped.",
				Target:  s.target,
			})
			return
		}
	}
}

// onPointer runs on the hook's delivery goroutine and must return quickly.
func (r *Recorder) onPointer(s *session, ev platform.PointerEvent) {
	if s.ctx.Err() != nil {
		return
	}
	p := schemas.ScreenPoint{X: ev.X, Y: ev.Y}

	hit, err := r.ws.WindowFromPoint(p)
	if err != nil {
		r.reportError(s, "hit test failed", err)
		return
	}
	if hit == 0 {
		return
	}
	root, err := r.ws.RootAncestor(hit)
	if err != nil {
		r.reportError(s, "ancestor lookup failed", err)
		return
	}
	if root != s.target.Handle {
		return
	}

	offset, err := r.mapper.ToClientOffset(s.target.Handle, p)
	if err != nil {
		if !errors.Is(err, schemas.ErrOutOfBounds) {
			r.reportError(s, "offset conversion failed", err)
		}
		return
	}

	r.logger.Debug("Click recorded.", zap.Int("offset_x", offset.OffsetX), zap.Int("offset_y", offset.OffsetY))
	r.publish(schemas.EventRecordedPoint, schemas.RecordedPoint{OffsetPoint: offset, ScreenX: p.X, ScreenY: p.Y})
}

func (r *Recorder) reportError(s *session, what string, err error) {
	r.logger.Warn("Recorder error.", zap.String("stage", what), zap.Error(err))
	if !s.errLimit.Allow() {
		return
	}
	r.publish(schemas.EventRecorderError, schemas.RecorderNotice{
		Message: fmt.Sprintf("%s: %v", what, err),
		Target:  s.target,
	})
}

func (r *Recorder) publish(t schemas.EventType, payload interface{}) {
	if err := r.pub.Publish(t, payload); err != nil {
		r.logger.Debug("Recorder event not delivered.", zap.String("type", string(t)), zap.Error(err))
	}
}
