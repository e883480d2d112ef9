package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrNoLogo is returned by NoLogo.
var ErrNoLogo = errors.New("no logo configured")

// maxLogoBytes caps how much of a logo response is read.
const maxLogoBytes = 10 << 20

// LogoSource supplies the logo image for one composite call.
type LogoSource interface {
	Load(ctx context.Context) (image.Image, error)
}

// NewLogoSource picks a source for ref: http(s) URLs are fetched on every
// call, file:// URLs and bare paths are read from disk, and an empty ref
// disables the overlay.
func NewLogoSource(ref string, timeout time.Duration) LogoSource {
	switch {
	case ref == "":
		return NoLogo{}
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return NewHTTPLogo(ref, timeout)
	case strings.HasPrefix(ref, "file://"):
		if u, err := url.Parse(ref); err == nil {
			return FileLogo{Path: u.Path}
		}
	}
	return FileLogo{Path: ref}
}

// NoLogo never yields a logo.
type NoLogo struct{}

// Load implements LogoSource.
func (NoLogo) Load(context.Context) (image.Image, error) { return nil, ErrNoLogo }

// HTTPLogo fetches the logo over HTTP. Nothing is cached between calls.
type HTTPLogo struct {
	URL    string
	client *http.Client
}

// NewHTTPLogo creates an HTTPLogo whose requests give up after timeout.
// A zero timeout means no limit beyond the caller's context.
func NewHTTPLogo(rawURL string, timeout time.Duration) *HTTPLogo {
	return &HTTPLogo{
		URL:    rawURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Load implements LogoSource.
func (l *HTTPLogo) Load(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build logo request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch logo: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	if len(data) > maxLogoBytes {
		return nil, fmt.Errorf("logo larger than %d bytes", maxLogoBytes)
	}
	return decodeLogo(data)
}

// FileLogo reads the logo from a local file.
type FileLogo struct {
	Path string
}

// Load implements LogoSource.
func (f FileLogo) Load(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read logo file: %w", err)
	}
	return decodeLogo(data)
}

func decodeLogo(data []byte) (image.Image, error) {
	if !filetype.IsImage(data) {
		return nil, errors.New("logo is not an image")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode logo: empty %s image", format)
	}
	return img, nil
}
