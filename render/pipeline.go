package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Status tells whether a result carries the logo overlay.
type Status string

const (
	StatusComplete    Status = "complete"
	StatusWithoutLogo Status = "without_logo"
)

// Result is one rendered QR code.
type Result struct {
	ID         string
	Text       string
	Options    Options
	Status     Status
	LogoErr    error // set when Status is StatusWithoutLogo
	Surface    *Surface
	RenderedAt time.Time
}

// Pipeline runs the two render stages, encode then composite, for a single
// request.
type Pipeline struct {
	Logo        LogoSource
	LogoTimeout time.Duration
	Log         *slog.Logger
}

// Run encodes text and overlays the logo. A logo failure is not an error:
// the result comes back with StatusWithoutLogo and the untouched encoder
// output. An error is returned when encoding fails or ctx ends first.
func (p *Pipeline) Run(ctx context.Context, text string, opts Options) (*Result, error) {
	res := &Result{
		ID:      uuid.NewString(),
		Text:    text,
		Options: opts,
		Status:  StatusComplete,
	}

	surface, err := Encode(text, opts)
	if err != nil {
		p.Log.Error("encoding failed", "id", res.ID, "error", err)
		return nil, fmt.Errorf("encode: %w", err)
	}
	res.Surface = surface

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logoCtx := ctx
	if p.LogoTimeout > 0 {
		var cancel context.CancelFunc
		logoCtx, cancel = context.WithTimeout(ctx, p.LogoTimeout)
		defer cancel()
	}

	logo := p.Logo
	if logo == nil {
		logo = NoLogo{}
	}
	if err := Composite(logoCtx, surface, logo, opts.Size); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.Log.Warn("rendered without logo", "id", res.ID, "error", err)
		res.Status = StatusWithoutLogo
		res.LogoErr = err
	}

	res.RenderedAt = time.Now()
	p.Log.Debug("render finished", "id", res.ID, "status", res.Status, "size", opts.Size)
	return res, nil
}
