package schemas

import (
	"fmt"
	"math"
	"time"

	json "github.com/json-iterator/go"
)

// -- Geometry Schemas --

// ScreenPoint is an absolute position on the virtual desktop.
type ScreenPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// OffsetPoint is a position relative to a window's top-left corner.
// Negative components are never produced by the mapper; a stored point with a
// negative component is skipped at dispatch time.
type OffsetPoint struct {
	OffsetX int `json:"offsetX"`
	OffsetY int `json:"offsetY"`
}

// Valid reports whether both components are non-negative.
func (o OffsetPoint) Valid() bool {
	return o.OffsetX >= 0 && o.OffsetY >= 0
}

// Rect is a window bounding rectangle in screen coordinates. Right and Bottom
// are exclusive, matching the Win32 RECT convention.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Contains reports whether the screen point lies inside the rectangle.
func (r Rect) Contains(p ScreenPoint) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// SelectionRect is an axis-aligned region in the pixel space of one snapshot.
type SelectionRect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the selection has no area.
func (s SelectionRect) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s SelectionRect) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", s.Width, s.Height, s.Left, s.Top)
}

// selectionWire accepts every spelling UI clients send. Field matching is
// case-insensitive, so "X" and "Width" land here too.
type selectionWire struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Left   *float64 `json:"left"`
	Top    *float64 `json:"top"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// UnmarshalJSON reads a selection given as x/y or left/top plus width and
// height. Fractional values are floored; "x" wins over "left" when both are
// present.
func (s *SelectionRect) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var w selectionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Invalid("selection", "coordinates must be numbers")
	}
	var out SelectionRect
	for _, f := range []struct {
		dst  *int
		vals []*float64
	}{
		{&out.Left, []*float64{w.X, w.Left}},
		{&out.Top, []*float64{w.Y, w.Top}},
		{&out.Width, []*float64{w.Width}},
		{&out.Height, []*float64{w.Height}},
	} {
		for _, v := range f.vals {
			if v == nil {
				continue
			}
			if math.IsNaN(*v) || math.Abs(*v) > math.MaxInt32 {
				return Invalid("selection", "coordinates out of range")
			}
			*f.dst = int(math.Floor(*v))
			break
		}
	}
	*s = out
	return nil
}

// -- Window Schemas --

// WindowID is the opaque OS handle of a top-level window.
type WindowID uintptr

// UntitledWindow replaces an empty window title in resolver results.
const UntitledWindow = "(untitled window)"

// WindowTarget identifies one top-level window.
type WindowTarget struct {
	ProcessID uint32   `json:"pid"`
	Title     string   `json:"title"`
	Handle    WindowID `json:"handle"`
}

// IsZero reports whether the target carries no handle.
func (w WindowTarget) IsZero() bool {
	return w.Handle == 0
}

// -- Duration Schemas --

// Millis is a duration serialised as whole milliseconds.
type Millis int64

// Duration converts the value to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// MillisOf converts a duration to Millis, truncating sub-millisecond precision.
func MillisOf(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}
