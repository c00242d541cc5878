// File: internal/service/components.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/dispatch"
	"github.com/xkilldash9x/snapclick/internal/engine"
	"github.com/xkilldash9x/snapclick/internal/events"
	"github.com/xkilldash9x/snapclick/internal/matcher"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/platform"
	"github.com/xkilldash9x/snapclick/internal/recorder"
	"github.com/xkilldash9x/snapclick/internal/store"
	"github.com/xkilldash9x/snapclick/internal/window"
)

// Components holds every initialized service of a running engine and
// centralizes their lifecycle.
type Components struct {
	Desktop    platform.Desktop
	Bus        *events.Bus
	Templates  *matcher.TemplateStore
	Matcher    *matcher.Matcher
	Dispatcher *dispatch.Dispatcher
	Resolver   *window.Resolver
	Mapper     *window.Mapper
	Supervisor *engine.Supervisor
	Recorder   *recorder.Recorder
	Profiles   schemas.ProfileRepository
	WorkingSet *store.WorkingSetStore
	Controller *Controller

	watchCancel context.CancelFunc
	watchWG     *sync.WaitGroup

	shutdownOnce sync.Once
}

const shutdownWait = 5 * time.Second

// timedWait waits for wg, giving up after timeout. It reports whether the
// wait completed.
func timedWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown releases every component in reverse dependency order. It is safe
// to call on a partially initialized value and more than once.
func (c *Components) Shutdown() {
	c.shutdownOnce.Do(c.shutdown)
}

func (c *Components) shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop the producers so nothing new is clicked or recorded.
	if c.Supervisor != nil {
		if err := c.Supervisor.StopAll(true); err != nil {
			logger.Warn("Some tasks did not stop in time.", zap.Error(err))
		}
		c.Supervisor.Wait()
		logger.Debug("Task supervisor stopped.")
	}
	if c.Recorder != nil {
		c.Recorder.Stop(true)
		logger.Debug("Recorder stopped.")
	}

	// 2. Stop the template watcher.
	if c.watchCancel != nil {
		c.watchCancel()
	}
	if c.watchWG != nil && !timedWait(c.watchWG, shutdownWait) {
		logger.Warn("Template watcher did not exit in time.")
	}

	// 3. Close the event bus. Subscribers see their channels close.
	if c.Bus != nil {
		c.Bus.Shutdown()
		logger.Debug("Event bus shut down.", zap.Uint64("dropped", c.Bus.Dropped()))
	}

	// 4. Close the profile store (and its connection pool, if any).
	if c.Profiles != nil {
		if err := c.Profiles.Close(); err != nil {
			logger.Warn("Error closing profile store.", zap.Error(err))
		} else {
			logger.Debug("Profile store closed.")
		}
	}

	logger.Info("All engine components shut down successfully.")
}
