//go:build windows

// Package win32 implements the platform primitives on top of user32 and gdi32.
package win32

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// Desktop is the Win32 window system, capturer and input poster.
type Desktop struct {
	logger *zap.Logger
}

// New verifies that every required entry point resolves.
func New(logger *zap.Logger) (*Desktop, error) {
	for _, p := range procs {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", schemas.ErrUnsupported, p.Name, err)
		}
	}
	return &Desktop{logger: logger.Named("win32")}, nil
}

// EnumWindows callbacks are a scarce runtime resource, so a single callback
// is created once and dispatches to the visitor registered under enumMu.
var (
	enumMu       sync.Mutex
	enumVisitor  func(schemas.WindowID) bool
	enumCallback = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		if enumVisitor(schemas.WindowID(hwnd)) {
			return 1
		}
		return 0
	})
)

func (d *Desktop) WindowFromPoint(p schemas.ScreenPoint) (schemas.WindowID, error) {
	// POINT is passed by value, packed into one register on 64-bit targets.
	packed := uintptr(uint32(int32(p.X))) | uintptr(uint32(int32(p.Y)))<<32
	r, _, _ := procWindowFromPoint.Call(packed)
	return schemas.WindowID(r), nil
}

func (d *Desktop) RootAncestor(id schemas.WindowID) (schemas.WindowID, error) {
	r, _, err := procGetAncestor.Call(uintptr(id), gaRoot)
	if r == 0 {
		return 0, fmt.Errorf("GetAncestor failed: %w", err)
	}
	return schemas.WindowID(r), nil
}

func (d *Desktop) EnumWindows(fn func(id schemas.WindowID) bool) error {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumVisitor = fn
	defer func() { enumVisitor = nil }()

	r, _, err := procEnumWindows.Call(enumCallback, 0)
	// A zero return is also produced when the visitor stops enumeration early.
	if r == 0 {
		if errno, ok := err.(windows.Errno); ok && errno != 0 {
			return fmt.Errorf("EnumWindows failed: %w", err)
		}
	}
	return nil
}

func (d *Desktop) WindowText(id schemas.WindowID) (string, error) {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(id))
	if n == 0 {
		return "", nil
	}
	buf := make([]uint16, n+1)
	r, _, err := procGetWindowTextW.Call(uintptr(id), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r == 0 {
		if errno, ok := err.(windows.Errno); ok && errno != 0 {
			return "", fmt.Errorf("GetWindowTextW failed: %w", err)
		}
	}
	return windows.UTF16ToString(buf), nil
}

func (d *Desktop) WindowProcessID(id schemas.WindowID) (uint32, error) {
	var pid uint32
	r, _, err := procGetWindowThreadProcessId.Call(uintptr(id), uintptr(unsafe.Pointer(&pid)))
	if r == 0 {
		return 0, fmt.Errorf("GetWindowThreadProcessId failed: %w", err)
	}
	return pid, nil
}

func (d *Desktop) IsWindow(id schemas.WindowID) bool {
	r, _, _ := procIsWindow.Call(uintptr(id))
	return r != 0
}

func (d *Desktop) IsVisible(id schemas.WindowID) bool {
	r, _, _ := procIsWindowVisible.Call(uintptr(id))
	return r != 0
}

func (d *Desktop) WindowRect(id schemas.WindowID) (schemas.Rect, error) {
	var rc rect
	r, _, err := procGetWindowRect.Call(uintptr(id), uintptr(unsafe.Pointer(&rc)))
	if r == 0 {
		return schemas.Rect{}, fmt.Errorf("%w: GetWindowRect: %v", schemas.ErrWindowGone, err)
	}
	return schemas.Rect{
		Left:   int(rc.Left),
		Top:    int(rc.Top),
		Right:  int(rc.Right),
		Bottom: int(rc.Bottom),
	}, nil
}

func (d *Desktop) ScreenToClient(id schemas.WindowID, p schemas.ScreenPoint) (schemas.ScreenPoint, error) {
	pt := point{X: int32(p.X), Y: int32(p.Y)}
	r, _, err := procScreenToClient.Call(uintptr(id), uintptr(unsafe.Pointer(&pt)))
	if r == 0 {
		return schemas.ScreenPoint{}, fmt.Errorf("%w: ScreenToClient: %v", schemas.ErrWindowGone, err)
	}
	return schemas.ScreenPoint{X: int(pt.X), Y: int(pt.Y)}, nil
}
