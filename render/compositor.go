package render

import (
	"context"
	"errors"
	"image/color"
)

const (
	// LogoRatio is the logo side relative to the surface size.
	LogoRatio = 0.2
	// LogoPadding is the extra side length of the white tile behind the logo.
	LogoPadding = 8.0
)

// tileColor backs the logo so it stays legible over dark modules.
var tileColor = color.White

// Overlay is the geometry of the logo and its backing tile.
type Overlay struct {
	LogoSize float64
	X, Y     float64
	Padding  float64
}

// Tile returns the rectangle of the white backing tile.
func (o Overlay) Tile() (x, y, w, h float64) {
	return o.X - o.Padding/2, o.Y - o.Padding/2, o.LogoSize + o.Padding, o.LogoSize + o.Padding
}

// OverlayFor computes the overlay for a logo scaled from size and centered
// on a width x height surface.
func OverlayFor(size, width, height int) Overlay {
	logoSize := float64(size) * LogoRatio
	return Overlay{
		LogoSize: logoSize,
		X:        (float64(width) - logoSize) / 2,
		Y:        (float64(height) - logoSize) / 2,
		Padding:  LogoPadding,
	}
}

// LogoError reports that the logo could not be loaded. The surface it was
// meant for is left exactly as the encoder produced it.
type LogoError struct {
	Err error
}

func (e *LogoError) Error() string { return "logo not applied: " + e.Err.Error() }

func (e *LogoError) Unwrap() error { return e.Err }

// Composite loads the logo from src and draws the backing tile and the
// logo, in that order, centered on c. Nothing is drawn unless the logo
// loads; in that case a *LogoError is returned.
func Composite(ctx context.Context, c Canvas, src LogoSource, size int) error {
	logo, err := src.Load(ctx)
	if err != nil {
		return &LogoError{Err: err}
	}
	// The load may have outlived a cancelled request.
	if err := ctx.Err(); err != nil {
		return &LogoError{Err: err}
	}

	o := OverlayFor(size, c.Width(), c.Height())
	tx, ty, tw, th := o.Tile()
	c.FillRect(tx, ty, tw, th, tileColor)
	c.DrawImage(logo, o.X, o.Y, o.LogoSize, o.LogoSize)
	return nil
}

// IsLogoError reports whether err came from a failed logo load.
func IsLogoError(err error) bool {
	var le *LogoError
	return errors.As(err, &le)
}
