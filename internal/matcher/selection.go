package matcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// Bounds is the pixel size of the snapshot a selection refers to.
type Bounds struct {
	Width, Height int
}

// ParseSelection converts a loosely typed selection payload into a
// SelectionRect. Each field may be spelled in lower or upper camel case
// ("x" or "X", "width" or "Width"); "left"/"top" are accepted as aliases of
// "x"/"y". Values must be JSON numbers.
func ParseSelection(raw map[string]any, bounds *Bounds) (schemas.SelectionRect, error) {
	if raw == nil {
		return schemas.SelectionRect{}, schemas.Invalid("selection", "missing")
	}
	x, err := lookupNumber(raw, "x", "left")
	if err != nil {
		return schemas.SelectionRect{}, err
	}
	y, err := lookupNumber(raw, "y", "top")
	if err != nil {
		return schemas.SelectionRect{}, err
	}
	w, err := lookupNumber(raw, "width")
	if err != nil {
		return schemas.SelectionRect{}, err
	}
	h, err := lookupNumber(raw, "height")
	if err != nil {
		return schemas.SelectionRect{}, err
	}
	return NormalizeSelection(x, y, w, h, bounds)
}

// NormalizeSelection floors the raw values, forces a minimum size of one
// pixel and, when bounds are known, clips the size so the selection stays
// inside the snapshot. A selection whose origin lies outside the bounds is
// rejected.
func NormalizeSelection(x, y, w, h float64, bounds *Bounds) (schemas.SelectionRect, error) {
	for _, v := range []float64{x, y, w, h} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return schemas.SelectionRect{}, schemas.Invalid("selection", "coordinates must be finite numbers")
		}
	}

	sel := schemas.SelectionRect{
		Left:   max(0, int(math.Floor(x))),
		Top:    max(0, int(math.Floor(y))),
		Width:  max(1, int(math.Floor(w))),
		Height: max(1, int(math.Floor(h))),
	}
	if bounds == nil {
		return sel, nil
	}
	return Clamp(sel, *bounds)
}

// Clamp fits sel into bounds. A negative origin is moved to the edge and the
// size shrinks by the clipped amount.
func Clamp(sel schemas.SelectionRect, b Bounds) (schemas.SelectionRect, error) {
	if b.Width <= 0 || b.Height <= 0 {
		return schemas.SelectionRect{}, schemas.Invalid("snapshot", "has no pixels")
	}
	if sel.Left < 0 {
		sel.Width += sel.Left
		sel.Left = 0
	}
	if sel.Top < 0 {
		sel.Height += sel.Top
		sel.Top = 0
	}
	if sel.Empty() {
		return schemas.SelectionRect{}, schemas.Invalid("selection", "has no area inside the snapshot")
	}
	if sel.Left >= b.Width || sel.Top >= b.Height {
		return schemas.SelectionRect{}, schemas.Invalid("selection",
			fmt.Sprintf("origin (%d,%d) lies outside the %dx%d snapshot", sel.Left, sel.Top, b.Width, b.Height))
	}
	sel.Width = min(sel.Width, max(1, b.Width-sel.Left))
	sel.Height = min(sel.Height, max(1, b.Height-sel.Top))
	if sel.Empty() {
		return schemas.SelectionRect{}, schemas.Invalid("selection", "has zero area")
	}
	return sel, nil
}

func lookupNumber(raw map[string]any, keys ...string) (float64, error) {
	for _, key := range keys {
		for _, k := range []string{key, strings.ToUpper(key[:1]) + key[1:]} {
			v, ok := raw[k]
			if !ok {
				continue
			}
			switch n := v.(type) {
			case float64:
				return n, nil
			case float32:
				return float64(n), nil
			case int:
				return float64(n), nil
			case int64:
				return float64(n), nil
			case int32:
				return float64(n), nil
			default:
				return 0, schemas.Invalid("selection."+k, fmt.Sprintf("expected a number, got %T", v))
			}
		}
	}
	return 0, schemas.Invalid("selection."+keys[0], "missing")
}
