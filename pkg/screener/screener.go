package screener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"runtime"
	"time"
)

const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// DefaultBrowserBin is where distribution packages install chromium.
const DefaultBrowserBin = "/usr/bin/chromium"

// Engine starts browser sessions. One session serves one whole batch.
type Engine interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser owned by a single batch.
type Browser interface {
	// Capture navigates a fresh page to url, waits delay once the page has
	// loaded and returns the rendered viewport.
	Capture(ctx context.Context, url string, delay time.Duration) (image.Image, error)
	Close() error
}

// CaptureOptions contains the options for capturing screenshots.
type CaptureOptions struct {
	Engine                   string // Browser automation engine (rod, chromedp)
	BrowserBin               string // Browser executable; empty means look up or download
	CaptureHeight            int    // Height of the viewport
	CaptureWidth             int    // Width of the viewport
	Timeout                  int    // Timeout for page load (seconds)
	RespectCertificateErrors bool   // Respect certificate errors
	UseHTTP2                 bool   // Use HTTP2
	UserAgent                string // User agent
}

// NewOptions returns CaptureOptions initialized with default values.
func NewOptions() CaptureOptions {
	return CaptureOptions{
		Engine:                   EngineRod,
		BrowserBin:               LookupBrowserBin(),
		CaptureHeight:            1080,
		CaptureWidth:             1920,
		Timeout:                  30,
		RespectCertificateErrors: false,
		UseHTTP2:                 true,
	}
}

// NewEngine returns the engine selected by options.Engine.
func NewEngine(options CaptureOptions) (Engine, error) {
	if options.CaptureWidth <= 0 || options.CaptureHeight <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", options.CaptureWidth, options.CaptureHeight)
	}
	if options.Timeout <= 0 {
		options.Timeout = NewOptions().Timeout
	}

	switch options.Engine {
	case "", EngineRod:
		return NewRodEngine(options), nil
	case EngineChromedp:
		return NewChromedpEngine(options), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", options.Engine)
	}
}

// LookupBrowserBin returns DefaultBrowserBin on non-Windows hosts when it
// exists, otherwise an empty string.
func LookupBrowserBin() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	if _, err := os.Stat(DefaultBrowserBin); err == nil {
		return DefaultBrowserBin
	}
	return ""
}

func (o CaptureOptions) timeout() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// ErrTimeout matches every TimeoutError.
var ErrTimeout = errors.New("timed out")

// TimeoutError reports a browser step that ran past CaptureOptions.Timeout.
type TimeoutError struct {
	Step  string
	URL   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s timed out after %v", e.Step, e.URL, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// step runs fn under the per-item timeout. A deadline hit inside fn becomes a
// *TimeoutError; cancellation of ctx itself is passed through unchanged.
func (o CaptureOptions) step(ctx context.Context, name, url string, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Step: name, URL: url, After: o.timeout()}
	}
	return fmt.Errorf("error %s %s: %w", name, url, err)
}

func decodeScreenshot(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("browser returned an empty screenshot")
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// sleep blocks for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
