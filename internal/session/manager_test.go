package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/reelgrab/internal/browser"
	"github.com/shehryarbajwa/reelgrab/internal/browser/browsertest"
	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

func loggedInPage() *browsertest.Page {
	return &browsertest.Page{URLAfterNavigation: "https://www.instagram.com/"}
}

func newTestManager(engine browser.Engine, opts Options) *Manager {
	opts.Username = "alice"
	opts.Password = "secret"
	return NewManager(engine, opts, nil)
}

func countLogins(inst *browsertest.Instance) int {
	n := 0
	for _, p := range inst.Pages() {
		for _, c := range p.Calls() {
			if c == "goto "+DefaultLoginURL {
				n++
			}
		}
	}
	return n
}

func TestAcquireLogsInOnce(t *testing.T) {
	engine := browsertest.NewEngine(loggedInPage)
	m := newTestManager(engine, Options{})

	page, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, models.StateLoggedIn, m.State())

	loginPage := engine.Instance.Pages()[0]
	assert.Equal(t, []string{
		"goto " + DefaultLoginURL,
		"wait " + usernameSelector,
		"type " + usernameSelector,
		"type " + passwordSelector,
		"click " + submitSelector,
		"wait navigation",
		"wait " + homeSelector,
	}, loginPage.Calls())
	assert.True(t, loginPage.Closed())

	// second acquisition reuses the session
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Launches())
	assert.Equal(t, 1, countLogins(engine.Instance))
	assert.Len(t, engine.Instance.Pages(), 3)
}

func TestConcurrentAcquireSingleLaunchAndLogin(t *testing.T) {
	engine := browsertest.NewEngine(func() *browsertest.Page {
		p := loggedInPage()
		p.NavigationWait = 50 * time.Millisecond
		return p
	})
	engine.LaunchDelay = 20 * time.Millisecond
	m := newTestManager(engine, Options{MaxPages: 32})

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := m.Acquire(context.Background())
			if err == nil {
				page.Close()
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, engine.Launches())
	assert.Equal(t, 1, countLogins(engine.Instance))
	assert.Zero(t, m.Status().ActivePages)
}

func TestLoginStillOnLoginPage(t *testing.T) {
	engine := browsertest.NewEngine(func() *browsertest.Page {
		return &browsertest.Page{URLAfterNavigation: "https://www.instagram.com/accounts/login/?next=%2F"}
	})
	m := newTestManager(engine, Options{})

	page, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.Nil(t, page)

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.Equal(t, "still on login page", loginErr.Reason)
	assert.Equal(t, models.StateFailed, m.State())

	// only the login page was ever opened
	assert.Len(t, engine.Instance.Pages(), 1)

	// failed is terminal: no second login, no new page
	_, err = m.Acquire(context.Background())
	assert.True(t, errors.As(err, &loginErr))
	assert.Equal(t, 1, countLogins(engine.Instance))
	assert.Len(t, engine.Instance.Pages(), 1)
	assert.Contains(t, m.Status().LastError, "still on login page")
}

func TestLoginMarkerNotFound(t *testing.T) {
	engine := browsertest.NewEngine(func() *browsertest.Page {
		p := loggedInPage()
		p.MissingSelectors = map[string]bool{homeSelector: true}
		return p
	})
	m := newTestManager(engine, Options{MarkerTimeout: 10 * time.Millisecond})

	_, err := m.Acquire(context.Background())

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.Equal(t, "marker not found", loginErr.Reason)

	var timeoutErr *browser.TimeoutError
	assert.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, models.StateFailed, m.State())
}

func TestLoginPageLoadTimesOut(t *testing.T) {
	engine := browsertest.NewEngine(func() *browsertest.Page {
		p := loggedInPage()
		p.GotoDelay = time.Minute
		return p
	})
	m := newTestManager(engine, Options{NavigationTimeout: 10 * time.Millisecond})

	_, err := m.Acquire(context.Background())

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.Equal(t, "could not load login page", loginErr.Reason)

	var timeoutErr *browser.TimeoutError
	assert.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, models.StateFailed, m.State())
}

func TestLaunchFailureAllowsRetry(t *testing.T) {
	engine := browsertest.NewEngine(loggedInPage)
	engine.LaunchErr = errors.New("chrome binary missing")
	m := newTestManager(engine, Options{})

	_, err := m.Acquire(context.Background())
	var launchErr *browser.LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, models.StateLoggedOut, m.State())

	engine.LaunchErr = nil
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Launches())
	assert.Equal(t, models.StateLoggedIn, m.State())
}

func TestStateTransitionsObserved(t *testing.T) {
	var mu sync.Mutex
	var seen []models.SessionState

	engine := browsertest.NewEngine(loggedInPage)
	m := newTestManager(engine, Options{OnStateChange: func(s models.SessionState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}})

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.SessionState{models.StateLoggingIn, models.StateLoggedIn}, seen)
}

func TestPageSlotsReleasedOnClose(t *testing.T) {
	engine := browsertest.NewEngine(loggedInPage)
	m := newTestManager(engine, Options{MaxPages: 1})

	page, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Status().ActivePages)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, page.Close())
	require.NoError(t, page.Close())
	assert.Zero(t, m.Status().ActivePages)

	page, err = m.Acquire(context.Background())
	require.NoError(t, err)
	page.Close()
}

func TestCloseAndDebuggerURL(t *testing.T) {
	engine := browsertest.NewEngine(loggedInPage)
	engine.Instance.Debugger = "ws://localhost:49153"
	m := newTestManager(engine, Options{})

	assert.Empty(t, m.DebuggerURL())
	assert.NoError(t, m.Close())

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:49153", m.DebuggerURL())

	require.NoError(t, m.Close())
	_, err = m.Acquire(context.Background())
	assert.Error(t, err)
}
