package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotInitialized = errors.New("browser not initialized")
	ErrUnknownEngine  = errors.New("unknown browser engine")
)

// Driver is the set of page capabilities the executor and extraction engine
// consume. One Driver owns exactly one page.
type Driver interface {
	Launch(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	// WaitIdle waits until the page settles or timeout elapses.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	ClickAt(ctx context.Context, x, y float64) error
	Fill(ctx context.Context, selector, value string) error
	Press(ctx context.Context, key string) error
	Select(ctx context.Context, selector, value string) error
	// Evaluate runs script in the page and decodes its JSON result into out.
	// out may be nil when the result is not needed.
	Evaluate(ctx context.Context, script Script, out any) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Script is a JavaScript function source plus the arguments it is invoked
// with. Name identifies the script in logs and test fakes.
type Script struct {
	Name   string
	Source string
	Args   []any
}

// Expression renders the script as a self-invoking expression.
func (s Script) Expression() (string, error) {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("script %s: encode arg %d: %w", s.Name, i, err)
		}
		args[i] = string(b)
	}
	return "(" + strings.TrimSpace(s.Source) + ")(" + strings.Join(args, ",") + ")", nil
}

// Options configures a browser engine.
type Options struct {
	Engine         string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	Timeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.ViewportWidth == 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight == 0 {
		o.ViewportHeight = 800
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// NewDriver returns an unlaunched driver for the configured engine.
func NewDriver(opts Options) (Driver, error) {
	opts = opts.withDefaults()
	switch opts.Engine {
	case "", "chromedp":
		return NewChromeDriver(opts), nil
	case "playwright":
		return NewPlaywrightDriver(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, opts.Engine)
	}
}

// decodeResult converts a loosely typed evaluation result into out.
func decodeResult(v any, out any) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
