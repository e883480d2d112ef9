package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/fogleman/gg"
)

// Canvas is the subset of 2D drawing operations the compositor needs.
// Coordinates are in pixels and may be fractional.
type Canvas interface {
	Width() int
	Height() int
	FillRect(x, y, w, h float64, c color.Color)
	DrawImage(img image.Image, x, y, w, h float64)
}

// Surface is a raster drawing target. The encoder writes modules straight
// into the pixel buffer; the compositor draws through a gg context bound to
// the same buffer.
type Surface struct {
	img *image.RGBA
	dc  *gg.Context
}

var _ Canvas = (*Surface)(nil)

// NewSurface allocates a transparent width x height surface.
func NewSurface(width, height int) *Surface {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Surface{img: img, dc: gg.NewContextForRGBA(img)}
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.img.Bounds().Dx() }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.img.Bounds().Dy() }

// Empty reports whether the surface has no drawable area.
func (s *Surface) Empty() bool {
	return s == nil || s.Width() == 0 || s.Height() == 0
}

// Image exposes the backing pixel buffer.
func (s *Surface) Image() *image.RGBA { return s.img }

// FillRect fills an axis-aligned rectangle with c.
func (s *Surface) FillRect(x, y, w, h float64, c color.Color) {
	s.dc.SetColor(c)
	s.dc.DrawRectangle(x, y, w, h)
	s.dc.Fill()
}

// DrawImage draws img scaled to w x h with its top-left corner at (x, y).
func (s *Surface) DrawImage(img image.Image, x, y, w, h float64) {
	b := img.Bounds()
	if b.Empty() {
		return
	}
	s.dc.Push()
	s.dc.Translate(x, y)
	s.dc.Scale(w/float64(b.Dx()), h/float64(b.Dy()))
	s.dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	s.dc.Pop()
}

// WritePNG encodes the surface as PNG.
func (s *Surface) WritePNG(w io.Writer) error {
	if s.Empty() {
		return ErrNothingRendered
	}
	if err := png.Encode(w, s.img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// PNG returns the PNG encoding of the surface.
func (s *Surface) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.WritePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
