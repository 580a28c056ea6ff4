// Package browser is the boundary to the rendering engine. The rest of the
// service talks to Engine, Instance and Page; chromedp backs them in production.
package browser

import (
	"context"
	"fmt"
	"time"
)

// Engine starts browsing instances
type Engine interface {
	Launch(ctx context.Context) (Instance, error)
}

// Instance is one running browser whose pages share cookies
type Instance interface {
	NewPage(ctx context.Context) (Page, error)
	// DebuggerURL returns the CDP websocket of the instance, or "" if it has none to share
	DebuggerURL() string
	Close() error
}

// RequestHandler observes an outgoing page request. The request continues
// regardless of what the handler does.
type RequestHandler func(rawURL string)

// WaitOptions bounds a selector wait
type WaitOptions struct {
	Visible bool
	Timeout time.Duration
}

// Page is a single tab of an Instance
type Page interface {
	// Goto navigates and waits for the load; a non-zero timeout bounds it
	Goto(ctx context.Context, url string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, opts WaitOptions) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// WaitForNavigation blocks until a load completes after the last Goto or Click
	WaitForNavigation(ctx context.Context, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	SetRequestInterception(ctx context.Context, enabled bool) error
	OnRequest(handler RequestHandler)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Close() error
}

// TimeoutError is returned when a bounded wait expires
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s: %s", e.Timeout, e.Op)
}

// LaunchError is returned when the engine cannot start an instance
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
