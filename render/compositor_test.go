package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type drawOp struct {
	kind       string
	x, y, w, h float64
}

// recordingCanvas remembers draw calls instead of rasterizing them.
type recordingCanvas struct {
	width, height int
	ops           []drawOp
}

func (r *recordingCanvas) Width() int  { return r.width }
func (r *recordingCanvas) Height() int { return r.height }

func (r *recordingCanvas) FillRect(x, y, w, h float64, c color.Color) {
	r.ops = append(r.ops, drawOp{kind: "fill", x: x, y: y, w: w, h: h})
}

func (r *recordingCanvas) DrawImage(img image.Image, x, y, w, h float64) {
	r.ops = append(r.ops, drawOp{kind: "image", x: x, y: y, w: w, h: h})
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

var red = color.RGBA{255, 0, 0, 255}

// staticLogo returns the same in-memory image on every call.
type staticLogo struct {
	img image.Image
}

func (s staticLogo) Load(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.img, nil
}

func cloneSurface(s *Surface) *Surface {
	c := NewSurface(s.Width(), s.Height())
	copy(c.img.Pix, s.img.Pix)
	return c
}

func TestOverlayFor256(t *testing.T) {
	o := OverlayFor(256, 256, 256)

	assert.InDelta(t, 51.2, o.LogoSize, 1e-9)
	assert.InDelta(t, 102.4, o.X, 1e-9)
	assert.InDelta(t, 102.4, o.Y, 1e-9)

	x, y, w, h := o.Tile()
	assert.InDelta(t, 98.4, x, 1e-9)
	assert.InDelta(t, 98.4, y, 1e-9)
	assert.InDelta(t, 59.2, w, 1e-9)
	assert.InDelta(t, 59.2, h, 1e-9)
}

func TestOverlayIsCentered(t *testing.T) {
	for _, size := range []int{1, 64, 100, 255, 256, 333, 1024} {
		o := OverlayFor(size, size, size)
		assert.InDelta(t, float64(size)*0.2, o.LogoSize, 1e-9, "size %d", size)
		assert.InDelta(t, float64(size)/2, o.X+o.LogoSize/2, 1e-9, "size %d", size)
		assert.InDelta(t, float64(size)/2, o.Y+o.LogoSize/2, 1e-9, "size %d", size)

		// Tile shares the logo's center.
		x, y, w, h := o.Tile()
		assert.InDelta(t, o.X+o.LogoSize/2, x+w/2, 1e-9)
		assert.InDelta(t, o.Y+o.LogoSize/2, y+h/2, 1e-9)
	}
}

func TestOverlayNonSquareSurface(t *testing.T) {
	o := OverlayFor(200, 300, 200)
	assert.InDelta(t, 40.0, o.LogoSize, 1e-9)
	assert.InDelta(t, 130.0, o.X, 1e-9)
	assert.InDelta(t, 80.0, o.Y, 1e-9)
}

func TestCompositeDrawsTileBeforeLogo(t *testing.T) {
	c := &recordingCanvas{width: 256, height: 256}

	err := Composite(context.Background(), c, staticLogo{img: solidImage(10, 10, red)}, 256)
	require.NoError(t, err)

	require.Len(t, c.ops, 2)
	assert.Equal(t, "fill", c.ops[0].kind)
	assert.Equal(t, "image", c.ops[1].kind)

	assert.InDelta(t, 98.4, c.ops[0].x, 1e-9)
	assert.InDelta(t, 59.2, c.ops[0].w, 1e-9)
	assert.InDelta(t, 102.4, c.ops[1].x, 1e-9)
	assert.InDelta(t, 102.4, c.ops[1].y, 1e-9)
	assert.InDelta(t, 51.2, c.ops[1].w, 1e-9)
	assert.InDelta(t, 51.2, c.ops[1].h, 1e-9)
}

func TestCompositeLogoFailureDrawsNothing(t *testing.T) {
	c := &recordingCanvas{width: 256, height: 256}

	err := Composite(context.Background(), c, NoLogo{}, 256)
	require.Error(t, err)

	assert.True(t, IsLogoError(err))
	assert.True(t, errors.Is(err, ErrNoLogo))
	assert.Empty(t, c.ops)
}

func TestCompositeCancelledContext(t *testing.T) {
	c := &recordingCanvas{width: 256, height: 256}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Composite(ctx, c, staticLogo{img: solidImage(4, 4, red)}, 256)
	assert.True(t, IsLogoError(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, c.ops)
}

func TestCompositeOnSurface(t *testing.T) {
	s, err := Encode("http://127.0.0.1:8556/scan", Options{Size: 256, Margin: 4, Dark: "#000000", Light: "#ffffff", Level: "H"})
	require.NoError(t, err)
	raw := cloneSurface(s)

	require.NoError(t, Composite(context.Background(), s, staticLogo{img: solidImage(16, 16, red)}, 256))

	// Logo covers the center.
	center := rgbaAt(s.Image(), 128, 128)
	assert.Greater(t, center.R, uint8(250))
	assert.Less(t, center.G, uint8(5))
	assert.Less(t, center.B, uint8(5))

	// Inside the tile but outside the logo: white.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgbaAt(s.Image(), 100, 128))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgbaAt(s.Image(), 128, 155))

	// Outside the tile: untouched.
	for _, p := range []image.Point{{0, 0}, {50, 50}, {97, 128}, {128, 158}, {255, 255}} {
		assert.Equal(t, rgbaAt(raw.Image(), p.X, p.Y), rgbaAt(s.Image(), p.X, p.Y), "pixel %v", p)
	}
}

func TestCompositeFailureLeavesEncoderOutput(t *testing.T) {
	s, err := Encode("unchanged", DefaultOptions())
	require.NoError(t, err)
	raw := cloneSurface(s)

	err = Composite(context.Background(), s, FileLogo{Path: "/nonexistent/logo.png"}, 256)
	require.Error(t, err)
	assert.True(t, IsLogoError(err))

	assert.Equal(t, raw.Image().Pix, s.Image().Pix)
}

func TestCompositedCodeStillScans(t *testing.T) {
	text := "https://example.com/scan?campaign=spring&source=poster"
	modules := moduleCount(t, text, qrcode.Highest)
	size := (modules + 8) * 10

	s, err := Encode(text, Options{Size: size, Margin: 4, Dark: "#000000", Light: "#ffffff", Level: "H"})
	require.NoError(t, err)
	require.NoError(t, Composite(context.Background(), s, staticLogo{img: solidImage(32, 32, color.RGBA{0, 0, 128, 255})}, size))

	assert.Equal(t, text, decodeQR(t, s.Image()))
}
