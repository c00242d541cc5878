// Package hook provides the global pointer hook used by the click recorder.
package hook

import (
	"sync"

	"github.com/go-vgo/robotgo"
	gohook "github.com/robotn/gohook"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/platform"
)

var leftButton = gohook.MouseMap["left"]

// Hook adapts gohook's process-wide event channel to platform.PointerHook.
// gohook supports one active listener per process, so installs are serialized.
type Hook struct {
	logger *zap.Logger

	mu     sync.Mutex
	active bool

	// location reads the cursor; gohook reports int16 coordinates which can
	// clip on large virtual desktops.
	location func() (int, int)
}

// New creates a Hook.
func New(logger *zap.Logger) *Hook {
	return &Hook{
		logger:   logger.Named("pointer_hook"),
		location: robotgo.Location,
	}
}

// Install starts delivering left-button presses to cb until unhook is called.
func (h *Hook) Install(cb func(platform.PointerEvent)) (func(), error) {
	h.mu.Lock()
	if h.active {
		h.mu.Unlock()
		return nil, errAlreadyInstalled
	}
	h.active = true
	h.mu.Unlock()

	events := gohook.Start()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				// MouseHold is the press; gohook reports MouseDown for a completed click.
				if ev.Kind != gohook.MouseHold || ev.Button != leftButton {
					continue
				}
				x, y := h.location()
				cb(platform.PointerEvent{X: x, Y: y})
			}
		}
	}()

	var once sync.Once
	unhook := func() {
		once.Do(func() {
			close(stop)
			<-done
			gohook.End()
			h.mu.Lock()
			h.active = false
			h.mu.Unlock()
			h.logger.Debug("Pointer hook removed")
		})
	}
	h.logger.Debug("Pointer hook installed")
	return unhook, nil
}
