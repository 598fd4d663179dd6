// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/wayfarer/internal/browser"
)

// ScriptFunc answers one named in-page script.
type ScriptFunc func(args []any) (any, error)

// Fake records every call and answers scripts by name.
type Fake struct {
	mu sync.Mutex

	CurrentURL string
	PageTitle  string
	PageHTML   string

	Scripts     map[string]ScriptFunc
	LaunchErrs  []error
	NavigateErr error
	ClickErr    func(selector string) error
	FillErr     func(selector string) error

	Launches    int
	Navigations []string
	Clicks      []string
	ClicksAt    [][2]float64
	Fills       [][2]string
	Keys        []string
	Selects     [][2]string
	Evaluated   []string
	Closed      bool
}

var _ browser.Driver = (*Fake)(nil)

func New() *Fake {
	return &Fake{CurrentURL: "about:blank", Scripts: map[string]ScriptFunc{}}
}

// On registers a handler for a script name.
func (f *Fake) On(name string, fn ScriptFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scripts[name] = fn
	return f
}

// Return registers a constant result for a script name.
func (f *Fake) Return(name string, v any) *Fake {
	return f.On(name, func([]any) (any, error) { return v, nil })
}

func (f *Fake) Launch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Launches++
	if len(f.LaunchErrs) > 0 {
		err := f.LaunchErrs[0]
		f.LaunchErrs = f.LaunchErrs[1:]
		return err
	}
	return nil
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.Navigations = append(f.Navigations, url)
	f.CurrentURL = url
	return nil
}

func (f *Fake) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

func (f *Fake) Click(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClickErr != nil {
		if err := f.ClickErr(selector); err != nil {
			return err
		}
	}
	f.Clicks = append(f.Clicks, selector)
	return nil
}

func (f *Fake) ClickAt(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClicksAt = append(f.ClicksAt, [2]float64{x, y})
	return nil
}

func (f *Fake) Fill(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FillErr != nil {
		if err := f.FillErr(selector); err != nil {
			return err
		}
	}
	f.Fills = append(f.Fills, [2]string{selector, value})
	return nil
}

func (f *Fake) Press(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, key)
	return nil
}

func (f *Fake) Select(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Selects = append(f.Selects, [2]string{selector, value})
	return nil
}

func (f *Fake) Evaluate(ctx context.Context, script browser.Script, out any) error {
	f.mu.Lock()
	fn, ok := f.Scripts[script.Name]
	f.Evaluated = append(f.Evaluated, script.Name)
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no fake handler for script %q", script.Name)
	}
	v, err := fn(script.Args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *Fake) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CurrentURL, nil
}

func (f *Fake) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageTitle, nil
}

func (f *Fake) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageHTML, nil
}

func (f *Fake) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsClosed reports whether Close was called; safe while the fake is in use.
func (f *Fake) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

// Count returns how many times the named script was evaluated.
func (f *Fake) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.Evaluated {
		if e == name {
			n++
		}
	}
	return n
}
