package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver drives Chromium through the Playwright server.
type PlaywrightDriver struct {
	opts Options

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

func NewPlaywrightDriver(opts Options) *PlaywrightDriver {
	return &PlaywrightDriver{opts: opts.withDefaults()}
}

func (d *PlaywrightDriver) Launch(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.page != nil {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		if ierr := playwright.Install(runOpts); ierr != nil {
			return fmt.Errorf("failed to install playwright: %w", ierr)
		}
		if pw, err = playwright.Run(runOpts); err != nil {
			return fmt.Errorf("failed to start playwright: %w", err)
		}
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.opts.ViewportWidth,
			Height: d.opts.ViewportHeight,
		},
	}
	if d.opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(d.opts.UserAgent)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(d.opts.Timeout.Milliseconds()))

	d.pw, d.browser, d.page = pw, browser, page
	return ctx.Err()
}

// do runs fn against the page, returning early if ctx is cancelled.
// Playwright calls are not context-aware, so fn keeps running in the
// background until its own timeout fires.
func (d *PlaywrightDriver) do(ctx context.Context, fn func(p playwright.Page) error) error {
	d.mu.Lock()
	page := d.page
	d.mu.Unlock()
	if page == nil {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn(page) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	return d.do(ctx, func(p playwright.Page) error {
		waitUntil := playwright.WaitUntilState("domcontentloaded")
		_, err := p.Goto(url, playwright.PageGotoOptions{
			WaitUntil: &waitUntil,
			Timeout:   ms(60 * time.Second),
		})
		return err
	})
}

func (d *PlaywrightDriver) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return d.do(ctx, func(p playwright.Page) error {
		state := playwright.LoadState("networkidle")
		return p.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   &state,
			Timeout: ms(timeout),
		})
	})
}

func (d *PlaywrightDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return d.do(ctx, func(p playwright.Page) error {
		return p.Click(selector, playwright.PageClickOptions{Timeout: ms(timeout)})
	})
}

func (d *PlaywrightDriver) ClickAt(ctx context.Context, x, y float64) error {
	return d.do(ctx, func(p playwright.Page) error {
		return p.Mouse().Click(x, y)
	})
}

func (d *PlaywrightDriver) Fill(ctx context.Context, selector, value string) error {
	return d.do(ctx, func(p playwright.Page) error {
		return p.Fill(selector, value)
	})
}

func (d *PlaywrightDriver) Press(ctx context.Context, key string) error {
	return d.do(ctx, func(p playwright.Page) error {
		return p.Keyboard().Press(key)
	})
}

func (d *PlaywrightDriver) Select(ctx context.Context, selector, value string) error {
	return d.do(ctx, func(p playwright.Page) error {
		_, err := p.SelectOption(selector, playwright.SelectOptionValues{Values: &[]string{value}})
		return err
	})
}

func (d *PlaywrightDriver) Evaluate(ctx context.Context, script Script, out any) error {
	expr, err := script.Expression()
	if err != nil {
		return err
	}
	return d.do(ctx, func(p playwright.Page) error {
		res, err := p.Evaluate(expr)
		if err != nil {
			return fmt.Errorf("script %s: %w", script.Name, err)
		}
		return decodeResult(res, out)
	})
}

func (d *PlaywrightDriver) URL(ctx context.Context) (string, error) {
	var u string
	err := d.do(ctx, func(p playwright.Page) error {
		u = p.URL()
		return nil
	})
	return u, err
}

func (d *PlaywrightDriver) Title(ctx context.Context) (string, error) {
	var t string
	err := d.do(ctx, func(p playwright.Page) error {
		var err error
		t, err = p.Title()
		return err
	})
	return t, err
}

func (d *PlaywrightDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.do(ctx, func(p playwright.Page) error {
		var err error
		html, err = p.Content()
		return err
	})
	return html, err
}

func (d *PlaywrightDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.do(ctx, func(p playwright.Page) error {
		var err error
		buf, err = p.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
		return err
	})
	return buf, err
}

func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.pw, d.browser, d.page = nil, nil, nil
	return firstErr
}
