// Package platform defines the OS primitives the automation engine consumes.
// Each concern is a small interface so that components depend only on what
// they use and tests can substitute the in-memory desktop from platform/fake.
package platform

import (
	"image"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// WindowSystem exposes top-level window discovery and geometry.
type WindowSystem interface {
	// WindowFromPoint returns the topmost window under a screen point, or 0.
	WindowFromPoint(p schemas.ScreenPoint) (schemas.WindowID, error)
	// RootAncestor walks from any window to its top-level ancestor.
	RootAncestor(id schemas.WindowID) (schemas.WindowID, error)
	// EnumWindows visits every top-level window until fn returns false.
	EnumWindows(fn func(id schemas.WindowID) bool) error
	WindowText(id schemas.WindowID) (string, error)
	WindowProcessID(id schemas.WindowID) (uint32, error)
	IsWindow(id schemas.WindowID) bool
	IsVisible(id schemas.WindowID) bool
	// WindowRect returns the current bounding rectangle in screen coordinates.
	WindowRect(id schemas.WindowID) (schemas.Rect, error)
	// ScreenToClient converts a screen point into the window's client space.
	ScreenToClient(id schemas.WindowID, p schemas.ScreenPoint) (schemas.ScreenPoint, error)
}

// Capturer grabs the visual contents of a window.
type Capturer interface {
	CaptureWindow(id schemas.WindowID) (*image.RGBA, error)
}

// InputPoster delivers synthetic button events to a window's message queue.
// Coordinates are client-relative. The OS cursor is never moved.
type InputPoster interface {
	PostButtonDown(id schemas.WindowID, x, y int) error
	PostButtonUp(id schemas.WindowID, x, y int) error
}

// PointerEvent is one primitive left-button press observed system-wide.
type PointerEvent struct {
	X, Y int
}

// PointerHook installs a global low-level pointer listener. The returned
// function removes the hook and must be safe to call more than once.
type PointerHook interface {
	Install(cb func(PointerEvent)) (unhook func(), err error)
}

// Desktop bundles every primitive. Concrete backends implement all of it.
type Desktop interface {
	WindowSystem
	Capturer
	InputPoster
	PointerHook
}
