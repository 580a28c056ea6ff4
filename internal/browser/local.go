package browser

import (
	"context"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LocalEngine launches a headless Chrome on this host
type LocalEngine struct {
	execPath string
	logger   *zap.Logger
}

// NewLocalEngine creates an engine; an empty execPath lets chromedp find Chrome
func NewLocalEngine(execPath string, logger *zap.Logger) *LocalEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalEngine{execPath: execPath, logger: logger}
}

// Launch starts the browser process. The instance is not bound to ctx; it
// lives until Close.
func (e *LocalEngine) Launch(ctx context.Context) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Err: err}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 1024),
	)
	if e.execPath != "" {
		opts = append(opts, chromedp.ExecPath(e.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	instance, err := startInstance(allocCtx, allocCancel, "", nil, e.logger)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}

	e.logger.Info("launched local browser instance")
	return instance, nil
}
