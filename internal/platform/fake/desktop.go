// Package fake provides a deterministic in-memory desktop implementing
// platform.Desktop. Windows are stacked in z-order (first added is topmost
// unless raised), client space equals window space, and every posted input
// event is recorded with its timestamp.
package fake

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/platform"
)

// Window describes one fake top-level window.
type Window struct {
	ID      schemas.WindowID
	Title   string
	PID     uint32
	Rect    schemas.Rect
	Hidden  bool
	Content *image.RGBA
}

// ButtonEvent is one recorded PostButtonDown/PostButtonUp call.
type ButtonEvent struct {
	Window schemas.WindowID
	Down   bool
	X, Y   int
	At     time.Time
}

// Desktop is safe for concurrent use.
type Desktop struct {
	mu       sync.Mutex
	windows  map[schemas.WindowID]*Window
	order    []schemas.WindowID
	parents  map[schemas.WindowID]schemas.WindowID
	events   []ButtonEvent
	rectErrs map[schemas.WindowID]int
	capErrs  map[schemas.WindowID]error
	captures map[schemas.WindowID]int
	hooks    map[int]func(platform.PointerEvent)
	nextHook int

	// EnumErr, when set, is returned by EnumWindows.
	EnumErr error
	// HookErr, when set, is returned by Install.
	HookErr error
}

var _ platform.Desktop = (*Desktop)(nil)

// New creates an empty desktop.
func New() *Desktop {
	return &Desktop{
		windows:  make(map[schemas.WindowID]*Window),
		parents:  make(map[schemas.WindowID]schemas.WindowID),
		rectErrs: make(map[schemas.WindowID]int),
		capErrs:  make(map[schemas.WindowID]error),
		captures: make(map[schemas.WindowID]int),
		hooks:    make(map[int]func(platform.PointerEvent)),
	}
}

// Add registers a top-level window below every existing one.
func (d *Desktop) Add(w Window) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := w
	d.windows[w.ID] = &cp
	d.order = append(d.order, w.ID)
}

// AddChild registers a child control of parent occupying r. Hit tests inside
// r return the child; RootAncestor maps it back to parent.
func (d *Desktop) AddChild(parent, child schemas.WindowID, r schemas.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parents[child] = parent
	d.windows[child] = &Window{ID: child, Rect: r}
	// Children are stacked directly above their parent.
	for i, id := range d.order {
		if id == parent {
			d.order = append(d.order[:i], append([]schemas.WindowID{child}, d.order[i:]...)...)
			return
		}
	}
}

// Close destroys a window and its children.
func (d *Desktop) Close(id schemas.WindowID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.windows, id)
	kept := d.order[:0]
	for _, w := range d.order {
		if w == id || d.parents[w] == id {
			delete(d.windows, w)
			continue
		}
		kept = append(kept, w)
	}
	d.order = kept
}

// Move changes a window's bounding rectangle.
func (d *Desktop) Move(id schemas.WindowID, r schemas.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[id]; ok {
		w.Rect = r
	}
}

// SetContent replaces what CaptureWindow returns for the window.
func (d *Desktop) SetContent(id schemas.WindowID, img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[id]; ok {
		w.Content = img
	}
}

// FailRect makes the next n WindowRect calls for id fail.
func (d *Desktop) FailRect(id schemas.WindowID, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rectErrs[id] = n
}

// FailCapture makes CaptureWindow return err for id until cleared with nil.
func (d *Desktop) FailCapture(id schemas.WindowID, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.capErrs, id)
		return
	}
	d.capErrs[id] = err
}

// Events returns a copy of every posted button event.
func (d *Desktop) Events() []ButtonEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ButtonEvent, len(d.events))
	copy(out, d.events)
	return out
}

// Captures returns how many times the window was captured.
func (d *Desktop) Captures(id schemas.WindowID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures[id]
}

// Press delivers a left-button press to every installed hook.
func (d *Desktop) Press(x, y int) {
	d.mu.Lock()
	cbs := make([]func(platform.PointerEvent), 0, len(d.hooks))
	for _, cb := range d.hooks {
		cbs = append(cbs, cb)
	}
	d.mu.Unlock()
	for _, cb := range cbs {
		cb(platform.PointerEvent{X: x, Y: y})
	}
}

// Hooks returns the number of installed hooks.
func (d *Desktop) Hooks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hooks)
}

func (d *Desktop) WindowFromPoint(p schemas.ScreenPoint) (schemas.WindowID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.order {
		w := d.windows[id]
		if !w.Hidden && w.Rect.Contains(p) {
			return id, nil
		}
	}
	return 0, nil
}

func (d *Desktop) RootAncestor(id schemas.WindowID) (schemas.WindowID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.windows[id]; !ok {
		return 0, fmt.Errorf("no window %d", id)
	}
	for {
		parent, ok := d.parents[id]
		if !ok {
			return id, nil
		}
		id = parent
	}
}

func (d *Desktop) EnumWindows(fn func(id schemas.WindowID) bool) error {
	d.mu.Lock()
	if d.EnumErr != nil {
		d.mu.Unlock()
		return d.EnumErr
	}
	var ids []schemas.WindowID
	for _, id := range d.order {
		if _, child := d.parents[id]; !child {
			ids = append(ids, id)
		}
	}
	d.mu.Unlock()
	for _, id := range ids {
		if !fn(id) {
			break
		}
	}
	return nil
}

func (d *Desktop) lookup(id schemas.WindowID) (*Window, error) {
	w, ok := d.windows[id]
	if !ok {
		return nil, fmt.Errorf("%w: no window %d", schemas.ErrWindowGone, id)
	}
	return w, nil
}

func (d *Desktop) WindowText(id schemas.WindowID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.lookup(id)
	if err != nil {
		return "", err
	}
	return w.Title, nil
}

func (d *Desktop) WindowProcessID(id schemas.WindowID) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.lookup(id)
	if err != nil {
		return 0, err
	}
	return w.PID, nil
}

func (d *Desktop) IsWindow(id schemas.WindowID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.windows[id]
	return ok
}

func (d *Desktop) IsVisible(id schemas.WindowID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[id]
	return ok && !w.Hidden
}

func (d *Desktop) WindowRect(id schemas.WindowID) (schemas.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := d.rectErrs[id]; n > 0 {
		d.rectErrs[id] = n - 1
		return schemas.Rect{}, fmt.Errorf("%w: injected failure", schemas.ErrWindowGone)
	}
	w, err := d.lookup(id)
	if err != nil {
		return schemas.Rect{}, err
	}
	return w.Rect, nil
}

func (d *Desktop) ScreenToClient(id schemas.WindowID, p schemas.ScreenPoint) (schemas.ScreenPoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.lookup(id)
	if err != nil {
		return schemas.ScreenPoint{}, err
	}
	return schemas.ScreenPoint{X: p.X - w.Rect.Left, Y: p.Y - w.Rect.Top}, nil
}

func (d *Desktop) CaptureWindow(id schemas.WindowID) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.capErrs[id]; err != nil {
		return nil, err
	}
	w, err := d.lookup(id)
	if err != nil {
		return nil, err
	}
	d.captures[id]++
	if w.Content == nil {
		return image.NewRGBA(image.Rect(0, 0, w.Rect.Width(), w.Rect.Height())), nil
	}
	cp := image.NewRGBA(w.Content.Rect)
	copy(cp.Pix, w.Content.Pix)
	return cp, nil
}

func (d *Desktop) post(id schemas.WindowID, down bool, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.lookup(id); err != nil {
		return err
	}
	d.events = append(d.events, ButtonEvent{Window: id, Down: down, X: x, Y: y, At: time.Now()})
	return nil
}

func (d *Desktop) PostButtonDown(id schemas.WindowID, x, y int) error { return d.post(id, true, x, y) }
func (d *Desktop) PostButtonUp(id schemas.WindowID, x, y int) error   { return d.post(id, false, x, y) }

func (d *Desktop) Install(cb func(platform.PointerEvent)) (func(), error) {
	if cb == nil {
		return nil, errors.New("callback cannot be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.HookErr != nil {
		return nil, d.HookErr
	}
	key := d.nextHook
	d.nextHook++
	d.hooks[key] = cb
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.hooks, key)
			d.mu.Unlock()
		})
	}, nil
}
