package matcher

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

func filledRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestParseSelection(t *testing.T) {
	t.Run("lower and upper camel case spellings", func(t *testing.T) {
		sel, err := ParseSelection(map[string]any{"X": 10.7, "y": 4.2, "Width": 30.9, "height": 0.5}, nil)
		require.NoError(t, err)
		assert.Equal(t, schemas.SelectionRect{Left: 10, Top: 4, Width: 30, Height: 1}, sel)
	})

	t.Run("left and top aliases", func(t *testing.T) {
		sel, err := ParseSelection(map[string]any{"left": 3, "top": 2, "width": 5, "height": 5}, nil)
		require.NoError(t, err)
		assert.Equal(t, schemas.SelectionRect{Left: 3, Top: 2, Width: 5, Height: 5}, sel)
	})

	t.Run("negative origin is clamped to zero", func(t *testing.T) {
		sel, err := ParseSelection(map[string]any{"x": -4.0, "y": -1.0, "width": 8.0, "height": 8.0}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, sel.Left)
		assert.Equal(t, 0, sel.Top)
	})

	t.Run("size is clipped to the snapshot", func(t *testing.T) {
		sel, err := ParseSelection(map[string]any{"x": 90.0, "y": 40.0, "width": 50.0, "height": 50.0}, &Bounds{Width: 100, Height: 60})
		require.NoError(t, err)
		assert.Equal(t, schemas.SelectionRect{Left: 90, Top: 40, Width: 10, Height: 20}, sel)
	})

	t.Run("origin outside the snapshot is invalid", func(t *testing.T) {
		_, err := ParseSelection(map[string]any{"x": 100.0, "y": 0.0, "width": 5.0, "height": 5.0}, &Bounds{Width: 100, Height: 60})
		assert.True(t, schemas.IsValidation(err))
	})

	t.Run("missing and mistyped fields are invalid", func(t *testing.T) {
		_, err := ParseSelection(map[string]any{"x": 1.0, "y": 1.0, "width": 5.0}, nil)
		assert.True(t, schemas.IsValidation(err))
		assert.Contains(t, err.Error(), "height")

		_, err = ParseSelection(map[string]any{"x": "1", "y": 1.0, "width": 5.0, "height": 5.0}, nil)
		assert.True(t, schemas.IsValidation(err))

		_, err = ParseSelection(nil, nil)
		assert.True(t, schemas.IsValidation(err))
	})
}

func TestStretch(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	copy(g.Pix, []byte{100, 150, 200})
	Stretch(g)
	assert.Equal(t, []byte{0, 128, 255}, g.Pix)

	flat := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(flat.Pix, []byte{128, 128, 128, 128})
	Stretch(flat)
	assert.Equal(t, []byte{128, 128, 128, 128}, flat.Pix, "a flat image has no contrast to stretch")
}

func TestSharpen_FlatImageUnchanged(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = 90
	}
	out := Sharpen(g)
	assert.Equal(t, g.Pix, out.Pix)
}

func TestSharpen_AmplifiesEdges(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	copy(g.Pix, []byte{50, 100, 50})
	out := Sharpen(g)
	// centre: 5*100 - 50 - 50 - 100 - 100 = 200
	assert.Equal(t, byte(200), out.Pix[1])
	// edges: 5*50 - 50 - 100 - 50 - 50 = 0
	assert.Equal(t, byte(0), out.Pix[0])
}

func TestCutTemplate(t *testing.T) {
	// -- Setup --
	src := filledRGBA(40, 30, color.RGBA{R: 20, G: 20, B: 20, A: 255})
	for y := 10; y < 20; y++ {
		for x := 10; x < 15; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 220, G: 220, B: 220, A: 255})
		}
	}
	sel := schemas.SelectionRect{Left: 5, Top: 10, Width: 10, Height: 10}

	// -- Execution --
	tpl, err := CutTemplate(src, sel, false)

	// -- Assertions --
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), tpl.Rect)
	assert.Equal(t, byte(0), tpl.GrayAt(0, 0).Y, "dark half stretches to black")
	assert.Equal(t, byte(255), tpl.GrayAt(9, 9).Y, "bright half stretches to white")

	_, err = CutTemplate(nil, sel, true)
	assert.True(t, schemas.IsValidation(err))
	_, err = CutTemplate(src, schemas.SelectionRect{Left: 50, Top: 0, Width: 5, Height: 5}, true)
	assert.True(t, schemas.IsValidation(err))
}

func TestExtract_HonoursImageOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(100, 100, 110, 110))
	src.SetRGBA(102, 103, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	g, err := Extract(src, schemas.SelectionRect{Left: 2, Top: 3, Width: 2, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0}, Pixels(g))
}

func TestResize(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range g.Pix {
		g.Pix[i] = 77
	}
	assert.Same(t, g, Resize(g, 8, 8))

	out := Resize(g, 4, 2)
	assert.Equal(t, image.Rect(0, 0, 4, 2), out.Rect)
	for _, v := range out.Pix {
		assert.InDelta(t, 77, int(v), 1)
	}
}

func TestPixels_SubImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = byte(i)
	}
	sub := g.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)
	assert.Equal(t, []byte{5, 6, 9, 10}, Pixels(sub))
}

// FuzzNormalizeSelection checks that any accepted selection fits inside the
// snapshot bounds it was clamped to.
func FuzzNormalizeSelection(f *testing.F) {
	f.Add(10.5, 20.2, 30.0, 40.0, uint16(64), uint16(48))
	f.Add(-3.0, -7.0, 0.0, 0.0, uint16(1), uint16(1))
	f.Add(63.9, 47.9, 500.0, 500.0, uint16(64), uint16(48))

	f.Fuzz(func(t *testing.T, x, y, w, h float64, bw, bh uint16) {
		bounds := &Bounds{Width: int(bw%4096) + 1, Height: int(bh%4096) + 1}

		sel, err := NormalizeSelection(x, y, w, h, bounds)
		if err != nil {
			assert.True(t, schemas.IsValidation(err))
			return
		}

		assert.GreaterOrEqual(t, sel.Left, 0)
		assert.GreaterOrEqual(t, sel.Top, 0)
		assert.GreaterOrEqual(t, sel.Width, 1)
		assert.GreaterOrEqual(t, sel.Height, 1)
		assert.LessOrEqual(t, sel.Left+sel.Width, bounds.Width)
		assert.LessOrEqual(t, sel.Top+sel.Height, bounds.Height)
	})
}

func TestClamp_NegativeOriginShrinksSelection(t *testing.T) {
	testCases := []struct {
		name     string
		sel      schemas.SelectionRect
		expected schemas.SelectionRect
	}{
		{"both axes clipped", schemas.SelectionRect{Left: -50, Top: -50, Width: 60, Height: 60}, schemas.SelectionRect{Width: 10, Height: 10}},
		{"left clipped", schemas.SelectionRect{Left: -2, Top: 3, Width: 5, Height: 4}, schemas.SelectionRect{Top: 3, Width: 3, Height: 4}},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clamp(tt.sel, Bounds{Width: 20, Height: 20})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("entirely outside", func(t *testing.T) {
		_, err := Clamp(schemas.SelectionRect{Left: -10, Top: 0, Width: 10, Height: 5}, Bounds{Width: 20, Height: 20})
		assert.True(t, schemas.IsValidation(err))
	})

	t.Run("extract never samples outside the snapshot", func(t *testing.T) {
		src := filledRGBA(20, 20, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		g, err := Extract(src, schemas.SelectionRect{Left: -5, Top: -5, Width: 10, Height: 10})
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 5, 5), g.Bounds())
	})
}
