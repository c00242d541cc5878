//go:build windows

package win32

import (
	"fmt"
	"image"
	"unsafe"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// maxCaptureBytes bounds a single capture buffer (roughly 11000x11000 BGRA).
const maxCaptureBytes = 500 << 20

// CaptureWindow renders the window into a top-down 32bpp DIB section with
// PrintWindow, falling back to BitBlt from the window DC when the window does
// not implement WM_PRINT. The result is RGBA with opaque alpha.
func (d *Desktop) CaptureWindow(id schemas.WindowID) (*image.RGBA, error) {
	rc, err := d.WindowRect(id)
	if err != nil {
		return nil, err
	}
	width, height := rc.Width(), rc.Height()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("window has empty bounds %dx%d", width, height)
	}
	if int64(width)*int64(height)*4 > maxCaptureBytes {
		return nil, fmt.Errorf("window too large to capture: %dx%d", width, height)
	}

	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("GetDC failed")
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, _ := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC failed")
	}
	defer procDeleteDC.Call(memDC)

	bmi := bitmapInfoHeader{
		Size:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		Width:       int32(width),
		Height:      -int32(height),
		Planes:      1,
		BitCount:    32,
		Compression: biRGB,
	}
	var bits uintptr
	bitmap, _, _ := procCreateDIBSection.Call(
		memDC,
		uintptr(unsafe.Pointer(&bmi)),
		dibRGBColors,
		uintptr(unsafe.Pointer(&bits)),
		0, 0,
	)
	if bitmap == 0 || bits == 0 {
		return nil, fmt.Errorf("CreateDIBSection failed")
	}
	defer procDeleteObject.Call(bitmap)

	old, _, _ := procSelectObject.Call(memDC, bitmap)
	if old == 0 {
		return nil, fmt.Errorf("SelectObject failed")
	}
	defer procSelectObject.Call(memDC, old)

	if ok, _, _ := procPrintWindow.Call(uintptr(id), memDC, pwRenderFullContent); ok == 0 {
		d.logger.Debug("PrintWindow failed, falling back to BitBlt", zap.Uintptr("handle", uintptr(id)))
		if err := d.blitWindow(id, memDC, width, height); err != nil {
			return nil, err
		}
	}

	total := width * height * 4
	src := unsafe.Slice((*byte)(unsafe.Pointer(bits)), total)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	dst := img.Pix
	for i := 0; i < total; i += 4 {
		dst[i] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i]
		dst[i+3] = 255
	}
	return img, nil
}

func (d *Desktop) blitWindow(id schemas.WindowID, memDC uintptr, width, height int) error {
	winDC, _, _ := procGetWindowDC.Call(uintptr(id))
	if winDC == 0 {
		return fmt.Errorf("%w: GetWindowDC failed", schemas.ErrWindowGone)
	}
	defer procReleaseDC.Call(uintptr(id), winDC)

	r, _, _ := procBitBlt.Call(memDC, 0, 0, uintptr(width), uintptr(height), winDC, 0, 0, srcCopy)
	if r == 0 {
		return fmt.Errorf("BitBlt failed")
	}
	return nil
}
