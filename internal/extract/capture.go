package extract

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/reelgrab/internal/browser"
	"github.com/shehryarbajwa/reelgrab/internal/stream"
)

const captureBuffer = 256

// capture feeds intercepted request URLs into a stream registry from a
// single goroutine. The page callback never blocks on classification.
type capture struct {
	registry *stream.Registry
	requests chan string
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func startCapture(ctx context.Context, page browser.Page, logger *zap.Logger) (*capture, error) {
	c := &capture{
		registry: stream.NewRegistry(),
		requests: make(chan string, captureBuffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   logger,
	}
	go c.loop()

	page.OnRequest(c.observe)
	if err := page.SetRequestInterception(ctx, true); err != nil {
		c.stop()
		return nil, err
	}
	return c, nil
}

func (c *capture) observe(rawURL string) {
	select {
	case c.requests <- rawURL:
	case <-c.done:
	}
}

func (c *capture) loop() {
	defer close(c.finished)
	for {
		select {
		case raw := <-c.requests:
			c.record(raw)
		case <-c.done:
			// drain whatever was queued before stop
			for {
				select {
				case raw := <-c.requests:
					c.record(raw)
				default:
					return
				}
			}
		}
	}
}

func (c *capture) record(raw string) {
	cand, kept := c.registry.Observe(raw)
	if kept {
		c.logger.Info("Captured media stream",
			zap.String("kind", string(cand.Kind)),
			zap.String("base_url", cand.BaseURL))
	}
}

// stop ends the capture and returns what was recorded. Safe to call twice.
func (c *capture) stop() stream.Snapshot {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.finished
	return c.registry.Snapshot()
}
