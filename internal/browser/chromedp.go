package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// launchTimeout bounds how long Launch waits for Chrome to come up.
var launchTimeout = 30 * time.Second

// runChrome is chromedp.Run; tests swap it to observe the launch context.
var runChrome = chromedp.Run

// ChromeDriver drives a local Chrome through the DevTools protocol.
type ChromeDriver struct {
	opts Options

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewChromeDriver(opts Options) *ChromeDriver {
	return &ChromeDriver{opts: opts.withDefaults()}
}

func (d *ChromeDriver) Launch(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx != nil {
		select {
		case <-d.browserCtx.Done():
			d.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(d.opts.ViewportWidth, d.opts.ViewportHeight),
	)
	if d.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.opts.UserAgent))
	}

	// The browser outlives the launching request, so it hangs off Background.
	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	d.browserCtx, d.browserCancel = chromedp.NewContext(d.allocCtx)

	// The first Run allocates Chrome on browserCtx; any context derived from it
	// and cancelled later would take the process down with it.
	done := make(chan error, 1)
	bctx := d.browserCtx
	go func() {
		done <- runChrome(bctx,
			chromedp.EmulateViewport(int64(d.opts.ViewportWidth), int64(d.opts.ViewportHeight)),
		)
	}()

	timer := time.NewTimer(launchTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("no response after %s", launchTimeout)
	}
	if err != nil {
		d.cleanup()
		return fmt.Errorf("failed to launch chrome: %w", err)
	}
	return nil
}

func (d *ChromeDriver) cleanup() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.browserCtx = nil
	d.allocCtx = nil
}

// run executes actions against the page, bounded by timeout and by ctx.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	bctx := d.browserCtx
	d.mu.Unlock()
	if bctx == nil {
		return ErrNotInitialized
	}

	actionCtx, cancel := context.WithTimeout(bctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(actionCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, 60*time.Second, chromedp.Navigate(url))
}

func (d *ChromeDriver) WaitIdle(ctx context.Context, timeout time.Duration) error {
	var ready bool
	return d.run(ctx, timeout+time.Second,
		chromedp.Poll(`document.readyState === "complete"`, &ready,
			chromedp.WithPollingInterval(100*time.Millisecond),
			chromedp.WithPollingTimeout(timeout),
		),
	)
}

func (d *ChromeDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (d *ChromeDriver) ClickAt(ctx context.Context, x, y float64) error {
	return d.run(ctx, d.opts.Timeout, chromedp.MouseClickXY(x, y))
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string) error {
	return d.run(ctx, d.opts.Timeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

var chromeKeys = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
	"PageDown":  kb.PageDown,
	"PageUp":    kb.PageUp,
	"End":       kb.End,
	"Home":      kb.Home,
}

func (d *ChromeDriver) Press(ctx context.Context, key string) error {
	if k, ok := chromeKeys[key]; ok {
		key = k
	}
	return d.run(ctx, d.opts.Timeout, chromedp.KeyEvent(key))
}

func (d *ChromeDriver) Select(ctx context.Context, selector, value string) error {
	return d.run(ctx, d.opts.Timeout, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (d *ChromeDriver) Evaluate(ctx context.Context, script Script, out any) error {
	expr, err := script.Expression()
	if err != nil {
		return err
	}
	var res any
	err = d.run(ctx, d.opts.Timeout*3, chromedp.Evaluate(expr, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("script %s: %w", script.Name, err)
	}
	return decodeResult(res, out)
}

func (d *ChromeDriver) URL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, d.opts.Timeout, chromedp.Location(&u))
	return u, err
}

func (d *ChromeDriver) Title(ctx context.Context) (string, error) {
	var t string
	err := d.run(ctx, d.opts.Timeout, chromedp.Title(&t))
	return t, err
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, d.opts.Timeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	return html, err
}

func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, d.opts.Timeout*3, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanup()
	return nil
}
