package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNothingRendered is returned when a download is requested before
	// any QR code has been rendered.
	ErrNothingRendered = errors.New("no QR code rendered yet")
	// ErrSuperseded is returned to a generation request that was replaced
	// by a newer one before it could finish.
	ErrSuperseded = errors.New("generation superseded by a newer request")
)

// Request is one generation request as submitted by the user. Zero fields
// fall back to the session defaults.
type Request struct {
	Text string `json:"text"`
	Options
}

// Artifact is a downloadable PNG of the current surface.
type Artifact struct {
	Filename string
	PNG      []byte
	Width    int
	Height   int
}

// SessionConfig holds the fixed inputs of a Session.
type SessionConfig struct {
	Pipeline       *Pipeline
	Defaults       Options
	DefaultText    string
	DownloadPrefix string
	// MaxSize caps requested sizes. Zero or anything above the package
	// MaxSize means MaxSize.
	MaxSize int
	Now     func() time.Time
}

// Session keeps the latest rendered QR code. Every Generate call cancels
// the one before it, and only the newest request may replace the current
// result.
type Session struct {
	cfg SessionConfig

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	current *Result
}

// NewSession creates an empty Session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DownloadPrefix == "" {
		cfg.DownloadPrefix = "codigo-qr"
	}
	if cfg.MaxSize <= 0 || cfg.MaxSize > MaxSize {
		cfg.MaxSize = MaxSize
	}
	return &Session{cfg: cfg}
}

// Generate renders req and makes it the current result. It returns
// ErrSuperseded if another Generate call started before this one
// committed, and ctx.Err() if ctx ended first.
func (s *Session) Generate(ctx context.Context, req Request) (*Result, error) {
	req = s.withDefaults(req)
	// A rejected request must not cancel the one in flight.
	if err := s.checkSize(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	genCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer s.release(seq, cancel)

	res, err := s.cfg.Pipeline.Run(genCtx, req.Text, req.Options)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if genCtx.Err() != nil {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return nil, ErrSuperseded
	}
	s.current = res
	return res, nil
}

// Render runs the pipeline for req without touching the current result.
func (s *Session) Render(ctx context.Context, req Request) (*Result, error) {
	req = s.withDefaults(req)
	if err := s.checkSize(req); err != nil {
		return nil, err
	}
	return s.cfg.Pipeline.Run(ctx, req.Text, req.Options)
}

func (s *Session) checkSize(req Request) error {
	if req.Size > s.cfg.MaxSize {
		return fmt.Errorf("%w: %dpx exceeds %dpx", ErrSizeTooLarge, req.Size, s.cfg.MaxSize)
	}
	return nil
}

// release drops the cancel func of request seq once it is done.
func (s *Session) release(seq uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	if s.seq == seq {
		s.cancel = nil
	}
	s.mu.Unlock()
}

// Current returns the latest committed result, or nil.
func (s *Session) Current() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Download serializes the current surface to PNG.
func (s *Session) Download() (*Artifact, error) {
	cur := s.Current()
	if cur == nil || cur.Surface.Empty() {
		return nil, ErrNothingRendered
	}
	data, err := cur.Surface.PNG()
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return &Artifact{
		Filename: fmt.Sprintf("%s-%d.png", s.cfg.DownloadPrefix, s.cfg.Now().UnixMilli()),
		PNG:      data,
		Width:    cur.Surface.Width(),
		Height:   cur.Surface.Height(),
	}, nil
}

func (s *Session) withDefaults(req Request) Request {
	d := s.cfg.Defaults
	if strings.TrimSpace(req.Text) == "" {
		req.Text = s.cfg.DefaultText
	}
	if req.Size == 0 {
		req.Size = d.Size
	}
	if req.Dark == "" {
		req.Dark = d.Dark
	}
	if req.Light == "" {
		req.Light = d.Light
	}
	if req.Level == "" {
		req.Level = d.Level
	}
	// Margin 0 is a legitimate choice, so it is not defaulted here.
	return req
}
