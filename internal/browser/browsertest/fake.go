// Package browsertest provides in-memory implementations of the browser
// interfaces for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shehryarbajwa/reelgrab/internal/browser"
)

// Engine counts launches and hands out a single Instance
type Engine struct {
	Instance    *Instance
	LaunchErr   error
	LaunchDelay time.Duration

	launches atomic.Int32
}

// NewEngine returns an engine whose pages are built by newPage
func NewEngine(newPage func() *Page) *Engine {
	return &Engine{Instance: &Instance{NewPageFunc: newPage}}
}

func (e *Engine) Launch(ctx context.Context) (browser.Instance, error) {
	e.launches.Add(1)
	if e.LaunchDelay > 0 {
		time.Sleep(e.LaunchDelay)
	}
	if e.LaunchErr != nil {
		return nil, &browser.LaunchError{Err: e.LaunchErr}
	}
	return e.Instance, nil
}

// Launches returns how many times Launch was called
func (e *Engine) Launches() int {
	return int(e.launches.Load())
}

// Instance records every page it opens
type Instance struct {
	NewPageFunc func() *Page
	Debugger    string

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (i *Instance) NewPage(ctx context.Context) (browser.Page, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, fmt.Errorf("instance closed")
	}

	p := &Page{}
	if i.NewPageFunc != nil {
		p = i.NewPageFunc()
	}
	i.pages = append(i.pages, p)
	return p, nil
}

// Pages returns the pages opened so far
func (i *Instance) Pages() []*Page {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*Page(nil), i.pages...)
}

func (i *Instance) DebuggerURL() string {
	return i.Debugger
}

func (i *Instance) Close() error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	return nil
}

// Page is a scriptable tab
type Page struct {
	// URLAfterNavigation is the location reported after a click-triggered navigation
	URLAfterNavigation string
	// MissingSelectors never appear; waiting on them times out
	MissingSelectors map[string]bool
	// Requests are replayed to the request handler on Goto while interception is on
	Requests       []string
	ScreenshotData []byte
	GotoErr        error
	// GotoDelay is how long navigation takes; longer than the timeout yields a TimeoutError
	GotoDelay      time.Duration
	NavigationWait time.Duration

	mu           sync.Mutex
	calls        []string
	location     string
	intercepting bool
	handler      browser.RequestHandler
	closed       bool
}

func (p *Page) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

// Calls returns the operations performed on the page, in order
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Closed reports whether Close was called
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.record("goto " + url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	if p.GotoDelay > 0 {
		var deadline <-chan time.Time
		if timeout > 0 {
			deadline = time.After(timeout)
		}
		select {
		case <-time.After(p.GotoDelay):
		case <-deadline:
			return &browser.TimeoutError{Op: "navigate to " + url, Timeout: timeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	p.location = url
	replay := p.intercepting && p.handler != nil
	handler := p.handler
	p.mu.Unlock()

	if replay {
		for _, r := range p.Requests {
			handler(r)
		}
	}
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, opts browser.WaitOptions) error {
	p.record("wait " + selector)
	if p.MissingSelectors[selector] {
		return &browser.TimeoutError{Op: "wait for " + selector, Timeout: opts.Timeout}
	}
	return nil
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	p.record("type " + selector)
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.record("click " + selector)
	return nil
}

func (p *Page) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	p.record("wait navigation")
	if p.NavigationWait > 0 {
		select {
		case <-time.After(p.NavigationWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.URLAfterNavigation != "" {
		p.mu.Lock()
		p.location = p.URLAfterNavigation
		p.mu.Unlock()
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *Page) SetRequestInterception(ctx context.Context, enabled bool) error {
	p.record(fmt.Sprintf("intercept %t", enabled))
	p.mu.Lock()
	p.intercepting = enabled
	p.mu.Unlock()
	return nil
}

func (p *Page) OnRequest(handler browser.RequestHandler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.record(fmt.Sprintf("screenshot full=%t", fullPage))
	return p.ScreenshotData, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
