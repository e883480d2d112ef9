// Package render turns text into QR code surfaces, overlays the logo on
// them, and keeps the latest result available for download.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/skip2/go-qrcode"
)

// ErrSizeTooSmall is returned when the requested size cannot fit one pixel
// per module including the margin.
var ErrSizeTooSmall = errors.New("size too small for QR code")

// ErrSizeTooLarge is returned when the requested size exceeds the render
// limit.
var ErrSizeTooLarge = errors.New("size too large for QR code")

// MaxSize is the largest surface Encode will allocate, in pixels per side.
const MaxSize = 4096

// Options controls how text is rasterized.
type Options struct {
	Size   int    `json:"size"`   // surface width and height in pixels
	Margin int    `json:"margin"` // quiet zone width in modules
	Dark   string `json:"dark"`   // hex color of dark modules
	Light  string `json:"light"`  // hex color of light modules and margin
	Level  string `json:"level"`  // error correction: L, M, Q or H
}

// DefaultOptions mirrors the defaults of the generator page.
func DefaultOptions() Options {
	return Options{
		Size:   256,
		Margin: 4,
		Dark:   "#000000",
		Light:  "#ffffff",
		Level:  "M",
	}
}

// ParseLevel maps a user-facing error correction level to the encoder's
// recovery level. Empty selects M.
func ParseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "low":
		return qrcode.Low, nil
	case "", "m", "medium":
		return qrcode.Medium, nil
	case "q", "quartile":
		return qrcode.High, nil
	case "h", "high":
		return qrcode.Highest, nil
	}
	return 0, fmt.Errorf("unknown error correction level %q", s)
}

// Encode rasterizes text onto a new Size x Size surface. Modules are
// stretched so that the code plus margin spans the full surface.
func Encode(text string, opts Options) (*Surface, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid size %d", opts.Size)
	}
	if opts.Size > MaxSize {
		return nil, fmt.Errorf("%w: %dpx exceeds %dpx", ErrSizeTooLarge, opts.Size, MaxSize)
	}
	if opts.Margin < 0 {
		return nil, fmt.Errorf("invalid margin %d", opts.Margin)
	}
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	dark, err := ParseHexColor(opts.Dark)
	if err != nil {
		return nil, fmt.Errorf("dark color: %w", err)
	}
	light, err := ParseHexColor(opts.Light)
	if err != nil {
		return nil, fmt.Errorf("light color: %w", err)
	}

	qr, err := qrcode.New(text, level)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	qr.DisableBorder = true
	bitmap := qr.Bitmap()

	modules := len(bitmap)
	span := modules + 2*opts.Margin
	if opts.Size < span {
		return nil, fmt.Errorf("%w: %dpx for %d modules", ErrSizeTooSmall, opts.Size, span)
	}

	s := NewSurface(opts.Size, opts.Size)
	paintModules(s, bitmap, opts.Margin, dark, light)
	return s, nil
}

// paintModules fills every pixel of s with the color of the module it
// falls in.
func paintModules(s *Surface, bitmap [][]bool, margin int, dark, light color.Color) {
	img := s.Image()
	size := s.Width()
	modules := len(bitmap)
	scale := float64(size) / float64(modules+2*margin)

	darkRGBA := color.RGBAModel.Convert(dark).(color.RGBA)
	lightRGBA := color.RGBAModel.Convert(light).(color.RGBA)

	// Column module index depends only on x, so compute it once.
	index := make([]int, size)
	for p := range index {
		index[p] = moduleAt(p, scale, margin, modules)
	}

	for y := 0; y < size; y++ {
		row := index[y]
		for x := 0; x < size; x++ {
			col := index[x]
			c := lightRGBA
			if row >= 0 && col >= 0 && bitmap[row][col] {
				c = darkRGBA
			}
			img.SetRGBA(x, y, c)
		}
	}
}

// moduleAt returns the module index covering pixel p, or -1 inside the
// margin.
func moduleAt(p int, scale float64, margin, modules int) int {
	i := int(math.Floor(float64(p)/scale)) - margin
	if i < 0 || i >= modules {
		return -1
	}
	return i
}
