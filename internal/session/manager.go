package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/reelgrab/internal/browser"
	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

const (
	DefaultLoginURL  = "https://www.instagram.com/accounts/login/"
	loginPathMarker  = "instagram.com/accounts/login"
	usernameSelector = `input[name="username"]`
	passwordSelector = `input[name="password"]`
	submitSelector   = `button[type="submit"]`
	homeSelector     = `svg[aria-label="Home"]`
)

// LoginError reports why the shared session could not authenticate
type LoginError struct {
	Reason string
	Err    error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed - %s: %v", e.Reason, e.Err)
	}
	return "login failed - " + e.Reason
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// Options configures the Manager
type Options struct {
	Username string
	Password string
	LoginURL string
	// SelectorTimeout bounds the login form and post-submit navigation waits
	SelectorTimeout time.Duration
	// NavigationTimeout bounds loading the login page
	NavigationTimeout time.Duration
	// MarkerTimeout bounds the wait for the post-login home marker
	MarkerTimeout time.Duration
	// LoginTimeout bounds the whole login sequence
	LoginTimeout time.Duration
	// MaxPages caps concurrently open pages
	MaxPages int64
	// OnStateChange is called with every state transition
	OnStateChange func(models.SessionState)
}

// Manager owns the single browser instance and its authenticated session
type Manager struct {
	engine browser.Engine
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      models.SessionState
	instance   browser.Instance
	loginErr   error
	launchedAt time.Time
	loggedInAt time.Time

	flight singleflight.Group
	slots  *semaphore.Weighted
	active atomic.Int64
}

// NewManager creates a session manager; nothing is launched until the first Acquire
func NewManager(engine browser.Engine, opts Options, logger *zap.Logger) *Manager {
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.SelectorTimeout == 0 {
		opts.SelectorTimeout = 60 * time.Second
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.MarkerTimeout == 0 {
		opts.MarkerTimeout = 5 * time.Second
	}
	if opts.LoginTimeout == 0 {
		opts.LoginTimeout = 2 * time.Minute
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		engine: engine,
		opts:   opts,
		logger: logger,
		state:  models.StateLoggedOut,
		slots:  semaphore.NewWeighted(opts.MaxPages),
	}
}

// Acquire returns a fresh page inside the authenticated session, launching the
// browser and logging in first if no caller has done so yet. Concurrent callers
// share one launch and one login. Closing the page releases its slot.
func (m *Manager) Acquire(ctx context.Context) (browser.Page, error) {
	if err := m.ensureSession(ctx); err != nil {
		return nil, err
	}

	if err := m.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for page slot: %w", err)
	}

	m.mu.Lock()
	instance := m.instance
	m.mu.Unlock()
	if instance == nil {
		m.slots.Release(1)
		return nil, fmt.Errorf("session manager is closed")
	}

	page, err := instance.NewPage(ctx)
	if err != nil {
		m.slots.Release(1)
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	m.active.Add(1)
	return &slotPage{Page: page, release: func() {
		m.active.Add(-1)
		m.slots.Release(1)
	}}, nil
}

func (m *Manager) ensureSession(ctx context.Context) error {
	if done, err := m.settled(); done {
		return err
	}

	// the flight outlives a caller that gives up waiting, so other callers still get its result
	flightCtx := context.WithoutCancel(ctx)
	result := m.flight.DoChan("session", func() (interface{}, error) {
		return nil, m.establish(flightCtx)
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settled reports whether the session reached a terminal state, and its error
func (m *Manager) settled() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case models.StateLoggedIn:
		return true, nil
	case models.StateFailed:
		return true, m.loginErr
	}
	return false, nil
}

func (m *Manager) establish(ctx context.Context) error {
	if done, err := m.settled(); done {
		return err
	}

	instance, err := m.ensureInstance(ctx)
	if err != nil {
		return err
	}

	m.setState(models.StateLoggingIn)
	m.logger.Info("logging into instagram")

	loginCtx, cancel := context.WithTimeout(ctx, m.opts.LoginTimeout)
	defer cancel()

	if err := m.login(loginCtx, instance); err != nil {
		var loginErr *LoginError
		if !errors.As(err, &loginErr) {
			err = &LoginError{Reason: "unexpected error", Err: err}
		}

		m.mu.Lock()
		m.loginErr = err
		m.mu.Unlock()
		m.setState(models.StateFailed)
		m.logger.Error("login failed", zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.loggedInAt = time.Now()
	m.mu.Unlock()
	m.setState(models.StateLoggedIn)
	m.logger.Info("login successful - found home icon")
	return nil
}

// ensureInstance launches the browser once. A failed launch leaves the instance
// unset so a later call can try again.
func (m *Manager) ensureInstance(ctx context.Context) (browser.Instance, error) {
	m.mu.Lock()
	instance := m.instance
	m.mu.Unlock()
	if instance != nil {
		return instance, nil
	}

	m.logger.Info("launching new browser instance")
	instance, err := m.engine.Launch(ctx)
	if err != nil {
		m.logger.Error("failed to launch browser instance", zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	m.instance = instance
	m.launchedAt = time.Now()
	m.mu.Unlock()
	return instance, nil
}

func (m *Manager) login(ctx context.Context, instance browser.Instance) error {
	page, err := instance.NewPage(ctx)
	if err != nil {
		return &LoginError{Reason: "could not open login page", Err: err}
	}
	defer page.Close()

	if err := page.Goto(ctx, m.opts.LoginURL, m.opts.NavigationTimeout); err != nil {
		return &LoginError{Reason: "could not load login page", Err: err}
	}

	if err := page.WaitForSelector(ctx, usernameSelector, browser.WaitOptions{Timeout: m.opts.SelectorTimeout}); err != nil {
		return &LoginError{Reason: "username input not found", Err: err}
	}

	if err := page.Type(ctx, usernameSelector, m.opts.Username); err != nil {
		return &LoginError{Reason: "could not type username", Err: err}
	}
	if err := page.Type(ctx, passwordSelector, m.opts.Password); err != nil {
		return &LoginError{Reason: "could not type password", Err: err}
	}
	if err := page.Click(ctx, submitSelector); err != nil {
		return &LoginError{Reason: "could not submit credentials", Err: err}
	}

	if err := page.WaitForNavigation(ctx, m.opts.SelectorTimeout); err != nil {
		return &LoginError{Reason: "no navigation after submit", Err: err}
	}

	location, err := page.URL(ctx)
	if err != nil {
		return &LoginError{Reason: "could not read location", Err: err}
	}
	if strings.Contains(location, loginPathMarker) {
		return &LoginError{Reason: "still on login page"}
	}

	if err := page.WaitForSelector(ctx, homeSelector, browser.WaitOptions{Timeout: m.opts.MarkerTimeout}); err != nil {
		return &LoginError{Reason: "marker not found", Err: err}
	}
	return nil
}

func (m *Manager) setState(state models.SessionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(state)
	}
}

// State returns the current session state
func (m *Manager) State() models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the session for reporting
func (m *Manager) Status() models.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := models.SessionStatus{
		State:       m.state,
		ActivePages: m.active.Load(),
	}
	if !m.launchedAt.IsZero() {
		launched := m.launchedAt
		status.LaunchedAt = &launched
	}
	if !m.loggedInAt.IsZero() {
		loggedIn := m.loggedInAt
		status.LoggedInAt = &loggedIn
	}
	if m.loginErr != nil {
		status.LastError = m.loginErr.Error()
	}
	return status
}

// DebuggerURL returns the CDP websocket of the shared instance, if it exposes one
func (m *Manager) DebuggerURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instance == nil {
		return ""
	}
	return m.instance.DebuggerURL()
}

// Close shuts the shared instance down
func (m *Manager) Close() error {
	m.mu.Lock()
	instance := m.instance
	m.instance = nil
	m.mu.Unlock()

	if instance == nil {
		return nil
	}
	return instance.Close()
}

// slotPage releases the manager's page slot exactly once on Close
type slotPage struct {
	browser.Page
	release func()
	once    sync.Once
}

func (p *slotPage) Close() error {
	err := p.Page.Close()
	p.once.Do(p.release)
	return err
}
