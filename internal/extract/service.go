// Package extract turns an Instagram URL into a screenshot or a muxed video
// by driving a logged-in browser page.
package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/reelgrab/internal/browser"
	"github.com/shehryarbajwa/reelgrab/internal/logging"
	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

const (
	selectorBody      = "body"
	selectorTimestamp = "time"
	selectorImage     = `img[src]:not([src=""])`
	selectorVideo     = "video"

	contentTypePNG = "image/png"
	contentTypeMP4 = "video/mp4"
)

// PageSource hands out pages from a logged-in browser session
type PageSource interface {
	Acquire(ctx context.Context) (browser.Page, error)
}

// Downloader fetches the full body of a media stream
type Downloader interface {
	Download(ctx context.Context, baseURL string) ([]byte, error)
}

// Muxer combines a video-only and an audio-only stream
type Muxer interface {
	Mux(ctx context.Context, video, audio []byte) ([]byte, error)
}

// Recorder receives the outcome of every extraction
type Recorder interface {
	ObserveExtraction(kind models.ContentKind, outcome string, elapsed time.Duration)
}

type Options struct {
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	QuiescenceWindow  time.Duration
}

type Service struct {
	pages      PageSource
	downloader Downloader
	muxer      Muxer
	recorder   Recorder
	opts       Options
	logger     *zap.Logger
}

func NewService(pages PageSource, downloader Downloader, muxer Muxer, recorder Recorder, opts Options, logger *zap.Logger) *Service {
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.SelectorTimeout == 0 {
		opts.SelectorTimeout = 60 * time.Second
	}
	if opts.QuiescenceWindow == 0 {
		opts.QuiescenceWindow = 2 * time.Second
	}
	return &Service{
		pages:      pages,
		downloader: downloader,
		muxer:      muxer,
		recorder:   recorder,
		opts:       opts,
		logger:     logger,
	}
}

// ExtractContent captures the post image or reel video behind targetURL
func (s *Service) ExtractContent(ctx context.Context, targetURL string) (*models.ContentResult, error) {
	log := s.logger.With(logging.URL(targetURL))
	if id := logging.RequestIDFrom(ctx); id != "" {
		log = log.With(logging.RequestID(id))
	}

	req, err := ParseRequest(targetURL)
	if err != nil {
		log.Warn("Rejected extraction request", zap.Error(err))
		return nil, err
	}

	start := time.Now()
	result, err := s.extract(ctx, req, log.With(zap.String("kind", string(req.Kind))))
	elapsed := time.Since(start)

	if s.recorder != nil {
		s.recorder.ObserveExtraction(req.Kind, Outcome(err), elapsed)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Extraction complete",
		zap.String("content_type", result.ContentType),
		zap.Int("bytes", len(result.Data)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (s *Service) extract(ctx context.Context, req models.ExtractionRequest, log *zap.Logger) (*models.ContentResult, error) {
	page, err := s.pages.Acquire(ctx)
	if err != nil {
		log.Error("Failed to acquire page", zap.Error(err))
		return nil, err
	}
	defer page.Close()

	// interception must be on before navigation or the first fragments are missed
	var c *capture
	if req.Kind == models.KindReel {
		c, err = startCapture(ctx, page, log)
		if err != nil {
			log.Error("Failed to enable request interception", zap.Error(err))
			return nil, fmt.Errorf("enable request interception: %w", err)
		}
		defer c.stop()
	}

	log.Info("Loading page")
	if err := page.Goto(ctx, req.TargetURL, s.opts.NavigationTimeout); err != nil {
		log.Error("Navigation failed", zap.Error(err))
		return nil, fmt.Errorf("navigate to %s: %w", req.TargetURL, err)
	}
	if err := page.WaitForSelector(ctx, selectorBody, browser.WaitOptions{Visible: true, Timeout: s.opts.SelectorTimeout}); err != nil {
		log.Error("Page body never became visible", zap.Error(err))
		return nil, err
	}

	if req.Kind == models.KindReel {
		return s.captureReel(ctx, page, c, log)
	}
	return s.capturePost(ctx, page, log)
}

func (s *Service) capturePost(ctx context.Context, page browser.Page, log *zap.Logger) (*models.ContentResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, sel := range []string{selectorTimestamp, selectorImage} {
		sel := sel
		g.Go(func() error {
			return page.WaitForSelector(gctx, sel, browser.WaitOptions{Timeout: s.opts.SelectorTimeout})
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Post content did not render", zap.Error(err))
		return nil, err
	}

	png, err := page.Screenshot(ctx, true)
	if err != nil {
		log.Error("Screenshot failed", zap.Error(err))
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	return &models.ContentResult{Kind: models.MediaImage, Data: png, ContentType: contentTypePNG}, nil
}

func (s *Service) captureReel(ctx context.Context, page browser.Page, c *capture, log *zap.Logger) (*models.ContentResult, error) {
	if err := page.WaitForSelector(ctx, selectorVideo, browser.WaitOptions{Timeout: s.opts.SelectorTimeout}); err != nil {
		log.Error("Reel video element did not render", zap.Error(err))
		return nil, err
	}

	// let the player request its remaining fragments
	select {
	case <-time.After(s.opts.QuiescenceWindow):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap := c.stop()
	log.Info("Stream capture finished",
		zap.Bool("video_found", snap.VideoURL != ""),
		zap.Bool("audio_found", snap.AudioURL != ""))
	if !snap.Complete() {
		err := &MissingStreamsError{VideoURL: snap.VideoURL, AudioURL: snap.AudioURL}
		log.Error("Reel streams incomplete", zap.Error(err))
		return nil, err
	}

	var video, audio []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		video, err = s.downloader.Download(gctx, snap.VideoURL)
		return err
	})
	g.Go(func() error {
		var err error
		audio, err = s.downloader.Download(gctx, snap.AudioURL)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error("Stream download failed", zap.Error(err))
		return nil, err
	}

	muxed, err := s.muxer.Mux(ctx, video, audio)
	if err != nil {
		log.Error("Muxing failed", zap.Error(err))
		return nil, err
	}

	return &models.ContentResult{Kind: models.MediaVideo, Data: muxed, ContentType: contentTypeMP4}, nil
}
