package matcher

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// -- Template Pipeline --

// CutTemplate extracts sel from a snapshot and runs it through the template
// pipeline: grayscale, contrast stretch and, when sharpen is set, a 3x3
// sharpen. The selection is clamped to the snapshot first.
func CutTemplate(src image.Image, sel schemas.SelectionRect, sharpen bool) (*image.Gray, error) {
	if src == nil {
		return nil, schemas.Invalid("snapshot", "missing")
	}
	g, err := Extract(src, sel)
	if err != nil {
		return nil, err
	}
	if sharpen {
		g = Sharpen(g)
	}
	return g, nil
}

// Extract crops sel out of src as a grayscale, contrast-stretched raster
// with origin (0,0). This is the form both templates and live regions take
// before scoring.
func Extract(src image.Image, sel schemas.SelectionRect) (*image.Gray, error) {
	b := src.Bounds()
	sel, err := Clamp(sel, Bounds{Width: b.Dx(), Height: b.Dy()})
	if err != nil {
		return nil, err
	}
	g := image.NewGray(image.Rect(0, 0, sel.Width, sel.Height))
	// draw converts through color.GrayModel, which applies the ITU-R 601 luma weights.
	draw.Draw(g, g.Bounds(), src, b.Min.Add(image.Pt(sel.Left, sel.Top)), draw.Src)
	Stretch(g)
	return g, nil
}

// Grayscale converts a decoded image to a grayscale raster with origin (0,0).
func Grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
	return g
}

// Stretch linearly maps the darkest pixel to 0 and the brightest to 255 in
// place. A flat image is left unchanged.
func Stretch(g *image.Gray) {
	if len(g.Pix) == 0 {
		return
	}
	lo, hi := byte(255), byte(0)
	for _, v := range g.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo || (lo == 0 && hi == 255) {
		return
	}
	span := int(hi - lo)
	for i, v := range g.Pix {
		g.Pix[i] = byte((int(v-lo)*255 + span/2) / span)
	}
}

// Sharpen applies the 3x3 kernel [0 -1 0; -1 5 -1; 0 -1 0] with clamped edges
// and returns a new raster.
func Sharpen(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(g.Pix[y*g.Stride+x])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 5*at(x, y) - at(x-1, y) - at(x+1, y) - at(x, y-1) - at(x, y+1)
			out.Pix[y*out.Stride+x] = byte(min(max(v, 0), 255))
		}
	}
	return out
}

// Resize resamples g to w x h. Equal sizes return g unchanged.
func Resize(g *image.Gray, w, h int) *image.Gray {
	if g.Rect.Dx() == w && g.Rect.Dy() == h {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), g, g.Bounds(), draw.Src, nil)
	return out
}

// Pixels returns the tightly packed pixel bytes of g.
func Pixels(g *image.Gray) []byte {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if g.Stride == w {
		return g.Pix[:w*h]
	}
	out := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := y * g.Stride
		out = append(out, g.Pix[off:off+w]...)
	}
	return out
}
