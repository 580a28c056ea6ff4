package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// chromeInstance is a browser driven over CDP by chromedp
type chromeInstance struct {
	browserCtx  context.Context
	cancel      func()
	debuggerURL string
	onClose     func() error
	logger      *zap.Logger
	closeOnce   sync.Once
}

// startInstance creates the first browser context on allocCtx, which starts
// (or connects to) the browser process
func startInstance(allocCtx context.Context, allocCancel context.CancelFunc, debuggerURL string, onClose func() error, logger *zap.Logger) (*chromeInstance, error) {
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &chromeInstance{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		debuggerURL: debuggerURL,
		onClose:     onClose,
		logger:      logger,
	}, nil
}

// NewPage opens a new tab in the shared browser context
func (i *chromeInstance) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser is closed: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(i.browserCtx)
	p := &chromePage{
		ctx:    tabCtx,
		cancel: tabCancel,
		nav:    newNavTracker(),
		logger: i.logger,
	}
	chromedp.ListenTarget(tabCtx, p.handleEvent)

	// the tab is created by the first Run, which must use the tab context itself
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return p, nil
}

func (i *chromeInstance) DebuggerURL() string {
	return i.debuggerURL
}

func (i *chromeInstance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		i.cancel()
		if i.onClose != nil {
			err = i.onClose()
		}
	})
	return err
}

// navTracker counts completed loads so WaitForNavigation can tell whether a
// load happened after the triggering action
type navTracker struct {
	mu    sync.Mutex
	count uint64
	mark  uint64
	ch    chan struct{}
}

func newNavTracker() *navTracker {
	return &navTracker{ch: make(chan struct{})}
}

func (n *navTracker) loaded() {
	n.mu.Lock()
	n.count++
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}

func (n *navTracker) arm() {
	n.mu.Lock()
	n.mark = n.count
	n.mu.Unlock()
}

func (n *navTracker) wait(ctx context.Context) error {
	for {
		n.mu.Lock()
		if n.count > n.mark {
			n.mark = n.count
			n.mu.Unlock()
			return nil
		}
		ch := n.ch
		n.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// chromePage is one chromedp tab
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	nav    *navTracker
	logger *zap.Logger

	mu        sync.RWMutex
	onRequest RequestHandler
	closeOnce sync.Once
}

func (p *chromePage) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *page.EventLoadEventFired:
		p.nav.loaded()

	case *fetch.EventRequestPaused:
		// CDP calls must not run on the event goroutine
		go func() {
			p.mu.RLock()
			handler := p.onRequest
			p.mu.RUnlock()
			if handler != nil {
				handler(ev.Request.URL)
			}

			c := chromedp.FromContext(p.ctx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(p.ctx, c.Target)
			if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil && p.ctx.Err() == nil {
				p.logger.Debug("continue request failed", zap.String("url", ev.Request.URL), zap.Error(err))
			}
		}()
	}
}

// run executes actions on the tab, bounded by timeout (if non-zero) and by the caller's ctx
func (p *chromePage) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *chromePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.nav.arm()
	return p.run(ctx, "navigate to "+url, timeout, chromedp.Navigate(url))
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, opts WaitOptions) error {
	action := chromedp.WaitReady(selector, chromedp.ByQuery)
	if opts.Visible {
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}
	return p.run(ctx, "wait for "+selector, opts.Timeout, action)
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, "type into "+selector, 0, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	p.nav.arm()
	return p.run(ctx, "click "+selector, 0, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := p.nav.wait(waitCtx); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: "wait for navigation", Timeout: timeout}
		}
		return fmt.Errorf("wait for navigation: %w", err)
	}
	return nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, "read location", 0, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (p *chromePage) SetRequestInterception(ctx context.Context, enabled bool) error {
	if enabled {
		return p.run(ctx, "enable request interception", 0, fetch.Enable())
	}
	return p.run(ctx, "disable request interception", 0, fetch.Disable())
}

func (p *chromePage) OnRequest(handler RequestHandler) {
	p.mu.Lock()
	p.onRequest = handler
	p.mu.Unlock()
}

func (p *chromePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// quality 100 keeps the capture lossless PNG
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, "screenshot", 0, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}
