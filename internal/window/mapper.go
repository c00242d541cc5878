package window

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/platform"
)

// Mapper converts between screen and window-relative coordinates. Window
// rectangles are read fresh on every call since windows move between calls.
type Mapper struct {
	ws platform.WindowSystem
}

// NewMapper creates a Mapper.
func NewMapper(ws platform.WindowSystem) (*Mapper, error) {
	if ws == nil {
		return nil, errors.New("window system cannot be nil")
	}
	return &Mapper{ws: ws}, nil
}

// ToClientOffset subtracts the window's top-left corner from p. A negative
// component yields schemas.ErrOutOfBounds.
func (m *Mapper) ToClientOffset(id schemas.WindowID, p schemas.ScreenPoint) (schemas.OffsetPoint, error) {
	rc, err := m.rect(id)
	if err != nil {
		return schemas.OffsetPoint{}, err
	}
	return OffsetIn(rc, p)
}

// ToScreenPoint adds the window's top-left corner to an offset.
func (m *Mapper) ToScreenPoint(id schemas.WindowID, o schemas.OffsetPoint) (schemas.ScreenPoint, error) {
	rc, err := m.rect(id)
	if err != nil {
		return schemas.ScreenPoint{}, err
	}
	return ScreenIn(rc, o), nil
}

// Rect reads the window's current bounding rectangle.
func (m *Mapper) Rect(id schemas.WindowID) (schemas.Rect, error) {
	return m.rect(id)
}

func (m *Mapper) rect(id schemas.WindowID) (schemas.Rect, error) {
	rc, err := m.ws.WindowRect(id)
	if err != nil {
		if errors.Is(err, schemas.ErrWindowGone) {
			return schemas.Rect{}, err
		}
		return schemas.Rect{}, fmt.Errorf("%w: %v", schemas.ErrWindowGone, err)
	}
	return rc, nil
}

// OffsetIn is the pure form of ToClientOffset for a known rectangle.
func OffsetIn(rc schemas.Rect, p schemas.ScreenPoint) (schemas.OffsetPoint, error) {
	o := schemas.OffsetPoint{OffsetX: p.X - rc.Left, OffsetY: p.Y - rc.Top}
	if !o.Valid() {
		return schemas.OffsetPoint{}, schemas.ErrOutOfBounds
	}
	return o, nil
}

// ScreenIn is the pure form of ToScreenPoint for a known rectangle.
func ScreenIn(rc schemas.Rect, o schemas.OffsetPoint) schemas.ScreenPoint {
	return schemas.ScreenPoint{X: rc.Left + o.OffsetX, Y: rc.Top + o.OffsetY}
}
