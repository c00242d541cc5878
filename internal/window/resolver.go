// Package window locates target windows and maps coordinates between screen
// space and window-relative space.
package window

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/platform"
)

// Resolver turns a screen point, a title fragment or a process id into a
// WindowTarget. Lookups that complete without a match return
// schemas.ErrNotFound; anything else is a hard failure.
type Resolver struct {
	ws     platform.WindowSystem
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(ws platform.WindowSystem, logger *zap.Logger) (*Resolver, error) {
	if ws == nil {
		return nil, errors.New("window system cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Resolver{ws: ws, logger: logger.Named("resolver")}, nil
}

// ByPoint hit-tests the topmost window under the point and reports its
// top-level ancestor.
func (r *Resolver) ByPoint(x, y float64) (schemas.WindowTarget, error) {
	if !finite(x) || !finite(y) {
		return schemas.WindowTarget{}, schemas.Invalid("coordinates", "must be finite numbers")
	}
	p := schemas.ScreenPoint{X: int(math.Round(x)), Y: int(math.Round(y))}

	hit, err := r.ws.WindowFromPoint(p)
	if err != nil {
		return schemas.WindowTarget{}, fmt.Errorf("hit test at (%d,%d) failed: %w", p.X, p.Y, err)
	}
	if hit == 0 {
		return schemas.WindowTarget{}, schemas.ErrNotFound
	}
	root, err := r.ws.RootAncestor(hit)
	if err != nil {
		return schemas.WindowTarget{}, fmt.Errorf("failed to resolve top-level ancestor: %w", err)
	}
	if root == 0 {
		return schemas.WindowTarget{}, schemas.ErrNotFound
	}
	return r.describe(root)
}

// ByTitle returns the top-level window whose title contains substring.
// Matching is case-sensitive.
func (r *Resolver) ByTitle(substring string) (schemas.WindowTarget, error) {
	if strings.TrimSpace(substring) == "" {
		return schemas.WindowTarget{}, schemas.Invalid("title", "must not be empty")
	}
	return r.first(func(id schemas.WindowID) (bool, error) {
		title, err := r.ws.WindowText(id)
		if err != nil {
			return false, err
		}
		return strings.Contains(title, substring), nil
	})
}

// ByProcessID returns the top-level window owned by pid.
func (r *Resolver) ByProcessID(pid int64) (schemas.WindowTarget, error) {
	if pid <= 0 || pid > math.MaxUint32 {
		return schemas.WindowTarget{}, schemas.Invalid("pid", "must be a positive process id")
	}
	want := uint32(pid)
	return r.first(func(id schemas.WindowID) (bool, error) {
		owner, err := r.ws.WindowProcessID(id)
		if err != nil {
			return false, err
		}
		return owner == want, nil
	})
}

// first enumerates every top-level window and picks among the matches
// deterministically: visible windows win over hidden ones, then the smallest
// handle. Enumeration order alone is not stable across calls.
func (r *Resolver) first(match func(schemas.WindowID) (bool, error)) (schemas.WindowTarget, error) {
	var (
		best        schemas.WindowID
		bestVisible bool
		found       bool
	)
	err := r.ws.EnumWindows(func(id schemas.WindowID) bool {
		ok, err := match(id)
		if err != nil {
			// A window can vanish mid-enumeration; skip it.
			r.logger.Debug("Skipping window during enumeration", zap.Uintptr("handle", uintptr(id)), zap.Error(err))
			return true
		}
		if !ok {
			return true
		}
		visible := r.ws.IsVisible(id)
		if !found || (visible && !bestVisible) || (visible == bestVisible && id < best) {
			best, bestVisible, found = id, visible, true
		}
		return true
	})
	if err != nil {
		return schemas.WindowTarget{}, fmt.Errorf("window enumeration failed: %w", err)
	}
	if !found {
		return schemas.WindowTarget{}, schemas.ErrNotFound
	}
	return r.describe(best)
}

func (r *Resolver) describe(id schemas.WindowID) (schemas.WindowTarget, error) {
	title, err := r.ws.WindowText(id)
	if err != nil {
		return schemas.WindowTarget{}, fmt.Errorf("failed to read window title: %w", err)
	}
	if strings.TrimSpace(title) == "" {
		title = schemas.UntitledWindow
	}
	pid, err := r.ws.WindowProcessID(id)
	if err != nil {
		return schemas.WindowTarget{}, fmt.Errorf("failed to read window owner: %w", err)
	}
	return schemas.WindowTarget{ProcessID: pid, Title: title, Handle: id}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
