package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/reelgrab/internal/api"
	"github.com/shehryarbajwa/reelgrab/internal/browser"
	"github.com/shehryarbajwa/reelgrab/internal/config"
	"github.com/shehryarbajwa/reelgrab/internal/download"
	"github.com/shehryarbajwa/reelgrab/internal/extract"
	"github.com/shehryarbajwa/reelgrab/internal/logging"
	"github.com/shehryarbajwa/reelgrab/internal/metrics"
	"github.com/shehryarbajwa/reelgrab/internal/muxer"
	"github.com/shehryarbajwa/reelgrab/internal/proxy"
	"github.com/shehryarbajwa/reelgrab/internal/ratelimit"
	"github.com/shehryarbajwa/reelgrab/internal/session"
	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

const (
	limiterPruneInterval = 10 * time.Minute
	limiterIdleTTL       = time.Hour
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logging.NewDefault().Fatal("Failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("Starting reelgrab", zap.String("browser_mode", cfg.Browser.Mode))

	engine, closeEngine, err := newEngine(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize browser engine", zap.Error(err))
	}
	defer closeEngine()

	m := metrics.New()

	sessionMgr := session.NewManager(engine, session.Options{
		Username:          cfg.Instagram.Username,
		Password:          cfg.Instagram.Password,
		NavigationTimeout: cfg.Capture.NavigationTimeout,
		SelectorTimeout:   cfg.Capture.SelectorTimeout,
		MarkerTimeout:     cfg.Capture.LoginMarkerTimeout,
		MaxPages:          cfg.Browser.MaxPages,
		OnStateChange:     func(s models.SessionState) { m.ObserveSessionState(s) },
	}, logger.Named("session"))

	downloader := download.New(download.Options{Timeout: cfg.Media.DownloadTimeout}, logger.Named("download"))

	ffmpeg := muxer.New(cfg.Media.FFmpegPath, cfg.Media.TmpDir, logger.Named("muxer"))
	if err := ffmpeg.CheckInstallation(); err != nil {
		logger.Warn("ffmpeg not found; reel captures will fail", zap.Error(err))
	}

	service := extract.NewService(sessionMgr, downloader, ffmpeg, m, extract.Options{
		NavigationTimeout: cfg.Capture.NavigationTimeout,
		SelectorTimeout:   cfg.Capture.SelectorTimeout,
		QuiescenceWindow:  cfg.Capture.QuiescenceWindow,
	}, logger.Named("extract"))

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst)
		logger.Info("Rate limiter initialized",
			zap.Int("requests_per_hour", cfg.RateLimit.RequestsPerHour),
			zap.Int("burst", cfg.RateLimit.Burst))
	}

	var proxyServer *proxy.Server
	if cfg.Debug.ProxyEnabled {
		proxyServer = proxy.NewServer(sessionMgr, logger.Named("proxy"))
		logger.Warn("CDP debug proxy enabled; anyone reaching /api/debug/ws controls the logged-in browser")
	}

	trusted, err := api.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Fatal("Invalid TRUSTED_PROXIES", zap.Error(err))
	}

	handler := api.NewHandler(service, sessionMgr, logger.Named("api"))
	router := handler.SetupRoutes(proxyServer, limiter, trusted, m)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if limiter != nil {
		go pruneLimiter(ctx, limiter, logger)
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sessionMgr.Close(); err != nil {
		logger.Error("Failed to close browser session", zap.Error(err))
	}

	logger.Info("Server stopped cleanly")
}

// newEngine builds the engine for the configured mode along with its cleanup
func newEngine(cfg *config.Config, logger *zap.Logger) (browser.Engine, func(), error) {
	switch cfg.Browser.Mode {
	case config.ModeDocker:
		engine, err := browser.NewDockerEngine(cfg.Browser.ChromeImage, logger.Named("docker"))
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		logger.Info("Ensuring browser image is available", zap.String("image", cfg.Browser.ChromeImage))
		if err := engine.EnsureImage(ctx); err != nil {
			engine.Close()
			return nil, nil, err
		}

		return engine, func() {
			if err := engine.Close(); err != nil {
				logger.Warn("Failed to close docker client", zap.Error(err))
			}
		}, nil
	default:
		return browser.NewLocalEngine(cfg.Browser.ChromePath, logger.Named("chrome")), func() {}, nil
	}
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter, logger *zap.Logger) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(limiterIdleTTL); n > 0 {
				logger.Debug("Pruned idle rate limit clients", zap.Int("removed", n))
			}
		}
	}
}
