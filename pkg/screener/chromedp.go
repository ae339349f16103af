package screener

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

// ChromedpEngine drives Chrome/Chromium over the DevTools protocol with chromedp.
type ChromedpEngine struct {
	options CaptureOptions
}

func NewChromedpEngine(options CaptureOptions) *ChromedpEngine {
	return &ChromedpEngine{options: options}
}

type chromedpBrowser struct {
	options CaptureOptions
	ctx     context.Context
	cancel  context.CancelFunc
}

func (e *ChromedpEngine) Launch(ctx context.Context) (Browser, error) {
	// Create custom chromedp options by appending the custom flags to the default options.
	opts := append(chromedp.DefaultExecAllocatorOptions[:], e.customFlags()...)

	allocator, cancelAllocator := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocator)

	cancel := func() {
		cancelBrowser()
		cancelAllocator()
	}

	// The first Run without actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("error launching browser: %w", err)
	}

	return &chromedpBrowser{
		options: e.options,
		ctx:     browserCtx,
		cancel:  cancel,
	}, nil
}

// customFlags returns chromedp.ExecAllocatorOptions based on the capture options.
func (e *ChromedpEngine) customFlags() []chromedp.ExecAllocatorOption {
	flags := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(e.options.CaptureWidth, e.options.CaptureHeight),
	}

	if e.options.BrowserBin != "" {
		flags = append(flags, chromedp.ExecPath(e.options.BrowserBin))
	}

	if e.options.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(e.options.UserAgent))
	}

	if !e.options.RespectCertificateErrors {
		flags = append(flags, chromedp.Flag("ignore-certificate-errors", true))
	}

	if !e.options.UseHTTP2 {
		flags = append(flags, chromedp.Flag("disable-http2", true))
	}

	return flags
}

func (b *chromedpBrowser) Capture(ctx context.Context, captureURL string, delay time.Duration) (image.Image, error) {
	// Each capture gets its own tab; cancelling tabCtx closes it.
	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()

	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("error opening tab: %w", err)
	}

	err := b.options.step(tabCtx, "loading", captureURL, func(ctx context.Context) error {
		return chromedp.Run(ctx,
			emulation.SetDeviceMetricsOverride(int64(b.options.CaptureWidth), int64(b.options.CaptureHeight), 1, false),
			chromedp.Navigate(captureURL),
		)
	})
	if err != nil {
		return nil, err
	}

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	var data []byte
	err = b.options.step(tabCtx, "capturing screenshot of", captureURL, func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
			return err
		}))
	})
	if err != nil {
		return nil, err
	}

	return decodeScreenshot(data)
}

func (b *chromedpBrowser) Close() error {
	log.Debug("Closing chromedp browser")
	b.cancel()
	return nil
}
