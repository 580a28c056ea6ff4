// Package download fetches complete media streams from the platform CDN.
package download

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/reelgrab/internal/stream"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36"
	DefaultReferer   = "https://www.instagram.com/"
)

// DownloadError reports a failed stream fetch. Status is zero for transport failures.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Status)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Options configures a Downloader
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
}

// Downloader fetches whole streams given a fragment base URL
type Downloader struct {
	client *resty.Client
	logger *zap.Logger
}

// New creates a downloader with browser-like headers
func New(opts Options, logger *zap.Logger) *Downloader {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = DefaultReferer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}

	client := resty.New().
		SetTransport(transport).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Referer", opts.Referer).
		SetRetryCount(0)

	return &Downloader{client: client, logger: logger}
}

// Download requests the entire stream behind baseURL, starting at byte 0
func (d *Downloader) Download(ctx context.Context, baseURL string) ([]byte, error) {
	target := stream.FullRangeURL(baseURL)
	start := time.Now()

	resp, err := d.client.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, &DownloadError{URL: target, Err: err}
	}

	if !resp.IsSuccess() {
		return nil, &DownloadError{URL: target, Status: resp.StatusCode()}
	}

	body := resp.Body()
	d.logger.Debug("stream downloaded",
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}
