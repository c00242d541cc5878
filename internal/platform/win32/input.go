//go:build windows

package win32

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// makeLParam packs client coordinates the way MAKELPARAM does.
func makeLParam(x, y int) uintptr {
	return uintptr(uint32(uint16(int16(x))) | uint32(uint16(int16(y)))<<16)
}

func (d *Desktop) post(id schemas.WindowID, msg uint32, wparam uintptr, x, y int) error {
	r, _, err := procPostMessageW.Call(uintptr(id), uintptr(msg), wparam, makeLParam(x, y))
	if r == 0 {
		if errno, ok := err.(windows.Errno); ok && errno == windows.ERROR_INVALID_WINDOW_HANDLE {
			return fmt.Errorf("%w: PostMessageW: %v", schemas.ErrWindowGone, err)
		}
		return fmt.Errorf("PostMessageW(0x%04x) failed: %w", msg, err)
	}
	return nil
}

func (d *Desktop) PostButtonDown(id schemas.WindowID, x, y int) error {
	return d.post(id, wmLButtonDown, mkLButton, x, y)
}

func (d *Desktop) PostButtonUp(id schemas.WindowID, x, y int) error {
	return d.post(id, wmLButtonUp, 0, x, y)
}
