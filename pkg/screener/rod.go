package screener

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

// RodEngine drives Chrome/Chromium through go-rod.
type RodEngine struct {
	options CaptureOptions
}

func NewRodEngine(options CaptureOptions) *RodEngine {
	return &RodEngine{options: options}
}

type rodBrowser struct {
	options  CaptureOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// Launch starts a headless browser. Without a configured binary rod looks for
// a local install and downloads one when none is found.
func (e *RodEngine) Launch(ctx context.Context) (Browser, error) {
	path := e.options.BrowserBin
	if path == "" {
		path, _ = launcher.LookPath()
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", fmt.Sprintf("%d,%d", e.options.CaptureWidth, e.options.CaptureHeight))

	if path != "" {
		l = l.Bin(path)
	}

	if e.options.UserAgent != "" {
		l.Set("user-agent", e.options.UserAgent)
	}

	if !e.options.RespectCertificateErrors {
		l.Set("ignore-certificate-errors", "true")
	}

	if !e.options.UseHTTP2 {
		l.Set("disable-http2", "true")
	}

	log.Debugf("Launching browser %s", path)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("error launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("error connecting to browser: %w", err)
	}

	return &rodBrowser{
		options:  e.options,
		launcher: l,
		browser:  browser,
	}, nil
}

func (b *rodBrowser) Capture(ctx context.Context, captureURL string, delay time.Duration) (image.Image, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("error opening page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debugf("Could not close page for %s: %v", captureURL, err)
		}
	}()

	viewport := &proto.EmulationSetDeviceMetricsOverride{
		Width:             b.options.CaptureWidth,
		Height:            b.options.CaptureHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}
	err = b.options.step(ctx, "setting viewport for", captureURL, func(ctx context.Context) error {
		return page.Context(ctx).SetViewport(viewport)
	})
	if err != nil {
		return nil, err
	}

	err = b.options.step(ctx, "loading", captureURL, func(ctx context.Context) error {
		p := page.Context(ctx)
		if err := p.Navigate(captureURL); err != nil {
			return err
		}
		return p.WaitLoad()
	})
	if err != nil {
		return nil, err
	}

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	var data []byte
	err = b.options.step(ctx, "capturing screenshot of", captureURL, func(ctx context.Context) error {
		var err error
		data, err = page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return decodeScreenshot(data)
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("error closing browser: %w", err)
	}
	return nil
}
