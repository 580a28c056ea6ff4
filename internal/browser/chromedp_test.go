package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavTrackerWaitsForLoadAfterArm(t *testing.T) {
	n := newNavTracker()
	n.loaded() // a load before the triggering action must not count
	n.arm()

	done := make(chan error, 1)
	go func() {
		done <- n.wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("wait returned before any new load")
	case <-time.After(50 * time.Millisecond):
	}

	n.loaded()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe the load")
	}
}

func TestNavTrackerLoadBeforeWait(t *testing.T) {
	n := newNavTracker()
	n.arm()
	n.loaded()

	require.NoError(t, n.wait(context.Background()))
}

func TestNavTrackerTimeout(t *testing.T) {
	n := newNavTracker()
	n.arm()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPageWaitForNavigationTimeout(t *testing.T) {
	p := &chromePage{nav: newNavTracker()}
	p.nav.arm()

	err := p.WaitForNavigation(context.Background(), 20*time.Millisecond)
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "wait for navigation", timeoutErr.Op)
}

func TestErrorMessages(t *testing.T) {
	te := &TimeoutError{Op: "wait for video", Timeout: time.Minute}
	assert.Equal(t, "timed out after 1m0s: wait for video", te.Error())

	cause := errors.New("chrome not found")
	le := &LaunchError{Err: cause}
	assert.ErrorIs(t, le, cause)
}
