package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INSTAGRAM_USERNAME", "alice")
	t.Setenv("INSTAGRAM_PASSWORD", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, ModeLocal, cfg.Browser.Mode)
	assert.Equal(t, 60*time.Second, cfg.Capture.NavigationTimeout)
	assert.Equal(t, 60*time.Second, cfg.Capture.SelectorTimeout)
	assert.Equal(t, 5*time.Second, cfg.Capture.LoginMarkerTimeout)
	assert.Equal(t, 2*time.Second, cfg.Capture.QuiescenceWindow)
	assert.Equal(t, "ffmpeg", cfg.Media.FFmpegPath)
	assert.Equal(t, int64(4), cfg.Browser.MaxPages)
	assert.False(t, cfg.Debug.ProxyEnabled)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "INSTAGRAM_USERNAME=bob\nINSTAGRAM_PASSWORD=hunter2\nQUIESCENCE_WINDOW=500ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv does not override variables that are already set
	t.Setenv("INSTAGRAM_USERNAME", "")
	os.Unsetenv("INSTAGRAM_USERNAME")
	t.Setenv("INSTAGRAM_PASSWORD", "")
	os.Unsetenv("INSTAGRAM_PASSWORD")
	t.Setenv("QUIESCENCE_WINDOW", "")
	os.Unsetenv("QUIESCENCE_WINDOW")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Instagram.Username)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.QuiescenceWindow)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("INSTAGRAM_USERNAME", "")
	os.Unsetenv("INSTAGRAM_USERNAME")
	t.Setenv("INSTAGRAM_PASSWORD", "")
	os.Unsetenv("INSTAGRAM_PASSWORD")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	t.Setenv("INSTAGRAM_USERNAME", "alice")
	t.Setenv("INSTAGRAM_PASSWORD", "secret")
	t.Setenv("BROWSER_MODE", "firefox")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROWSER_MODE")
}

func TestLoadDebugAndProxySettings(t *testing.T) {
	t.Setenv("INSTAGRAM_USERNAME", "alice")
	t.Setenv("INSTAGRAM_PASSWORD", "secret")
	t.Setenv("DEBUG_PROXY_ENABLED", "true")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")
	t.Setenv("NAVIGATION_TIMEOUT", "45s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.Debug.ProxyEnabled)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 45*time.Second, cfg.Capture.NavigationTimeout)
}
