package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Instagram InstagramConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
	Logging   LogConfig
	Debug     DebugConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"3000"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"5m"`
	// TrustedProxies are the peers (IPs or CIDRs) whose X-Forwarded-For is honoured
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// InstagramConfig holds the credentials for the shared session
type InstagramConfig struct {
	Username string `envconfig:"INSTAGRAM_USERNAME" required:"true"`
	Password string `envconfig:"INSTAGRAM_PASSWORD" required:"true"`
}

// BrowserConfig selects and configures the rendering engine
type BrowserConfig struct {
	Mode        string `envconfig:"BROWSER_MODE" default:"local"`
	ChromePath  string `envconfig:"CHROME_PATH"`
	ChromeImage string `envconfig:"CHROME_IMAGE" default:"browserless/chrome:latest"`
	MaxPages    int64  `envconfig:"MAX_PAGES" default:"4"`
}

// CaptureConfig holds the bounded waits used while a page renders
type CaptureConfig struct {
	NavigationTimeout  time.Duration `envconfig:"NAVIGATION_TIMEOUT" default:"60s"`
	SelectorTimeout    time.Duration `envconfig:"SELECTOR_TIMEOUT" default:"60s"`
	LoginMarkerTimeout time.Duration `envconfig:"LOGIN_MARKER_TIMEOUT" default:"5s"`
	QuiescenceWindow   time.Duration `envconfig:"QUIESCENCE_WINDOW" default:"2s"`
}

// MediaConfig holds stream download and mux settings
type MediaConfig struct {
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"2m"`
	FFmpegPath      string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	TmpDir          string        `envconfig:"TMP_DIR"`
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	RequestsPerHour int  `envconfig:"RATE_LIMIT_PER_HOUR" default:"120"`
	Burst           int  `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled         bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// DebugConfig controls the CDP debug proxy. The shared browser holds the
// account's session, so the proxy stays off unless explicitly enabled.
type DebugConfig struct {
	ProxyEnabled bool `envconfig:"DEBUG_PROXY_ENABLED" default:"false"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

const (
	ModeLocal  = "local"
	ModeDocker = "docker"
)

// Load reads an optional .env file and then the process environment
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case ModeLocal, ModeDocker:
	default:
		return fmt.Errorf("BROWSER_MODE must be %q or %q, got %q", ModeLocal, ModeDocker, c.Browser.Mode)
	}
	if c.Browser.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if c.Capture.NavigationTimeout <= 0 || c.Capture.SelectorTimeout <= 0 || c.Capture.LoginMarkerTimeout <= 0 {
		return fmt.Errorf("navigation, selector and login marker timeouts must be positive")
	}
	if c.Capture.QuiescenceWindow < 0 {
		return fmt.Errorf("QUIESCENCE_WINDOW must not be negative")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}
