// Package dispatch posts synthetic click sequences to a window's input queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/platform"
	"github.com/xkilldash9x/snapclick/internal/window"
)

const (
	// DefaultPressDelay separates button-down from button-up.
	DefaultPressDelay = 40 * time.Millisecond
	// DefaultPointGap separates consecutive points.
	DefaultPointGap = 80 * time.Millisecond
)

// Result summarizes one Dispatch call.
type Result struct {
	Clicked int `json:"clicked"`
	Skipped int `json:"skipped"`
}

// Dispatcher delivers down/up pairs for a list of window-relative points. The
// OS cursor never moves and focus is never taken; no acknowledgement from the
// receiving application is awaited.
type Dispatcher struct {
	ws         platform.WindowSystem
	poster     platform.InputPoster
	logger     *zap.Logger
	pressDelay time.Duration
	pointGap   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Dispatcher. Zero delays fall back to the defaults.
func New(ws platform.WindowSystem, poster platform.InputPoster, logger *zap.Logger, pressDelay, pointGap time.Duration) (*Dispatcher, error) {
	if ws == nil {
		return nil, errors.New("window system cannot be nil")
	}
	if poster == nil {
		return nil, errors.New("input poster cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if pressDelay <= 0 {
		pressDelay = DefaultPressDelay
	}
	if pointGap <= 0 {
		pointGap = DefaultPointGap
	}
	return &Dispatcher{
		ws:         ws,
		poster:     poster,
		logger:     logger.Named("dispatcher"),
		pressDelay: pressDelay,
		pointGap:   pointGap,
		sleep:      Sleep,
	}, nil
}

// Dispatch clicks each point in order. The window rectangle is re-read for
// every point and an unreadable rectangle fails the whole call. Points that
// land outside the client area, or carry a negative offset, are skipped.
// Cancelling ctx interrupts the sequence between events.
func (d *Dispatcher) Dispatch(ctx context.Context, id schemas.WindowID, points []schemas.OffsetPoint) (Result, error) {
	var res Result
	for i, o := range points {
		if i > 0 {
			if err := d.sleep(ctx, d.pointGap); err != nil {
				return res, err
			}
		}
		if !o.Valid() {
			res.Skipped++
			continue
		}

		rc, err := d.ws.WindowRect(id)
		if err != nil {
			return res, fmt.Errorf("%w: %v", schemas.ErrWindowGone, err)
		}
		client, err := d.ws.ScreenToClient(id, window.ScreenIn(rc, o))
		if err != nil {
			return res, fmt.Errorf("failed to map point %d to client space: %w", i, err)
		}
		if client.X < 0 || client.Y < 0 {
			d.logger.Debug("Point is outside the client area, skipping.",
				zap.Int("index", i), zap.Int("offset_x", o.OffsetX), zap.Int("offset_y", o.OffsetY))
			res.Skipped++
			continue
		}

		if err := d.poster.PostButtonDown(id, client.X, client.Y); err != nil {
			return res, fmt.Errorf("button down at point %d: %w", i, err)
		}
		// The up event is always posted once down went through so the target
		// never sees a stuck button.
		sleepErr := d.sleep(ctx, d.pressDelay)
		if err := d.poster.PostButtonUp(id, client.X, client.Y); err != nil {
			return res, fmt.Errorf("button up at point %d: %w", i, err)
		}
		res.Clicked++
		if sleepErr != nil {
			return res, sleepErr
		}
	}
	return res, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
