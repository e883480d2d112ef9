package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8556, cfg.Port)
	assert.Equal(t, 256, cfg.Render.Size)
	assert.Equal(t, 4, cfg.Render.Margin)
	assert.Equal(t, "M", cfg.Render.Level)
	assert.Equal(t, 4096, cfg.Render.MaxSize)
	assert.Equal(t, DefaultLogoURL, cfg.LogoURL)
	assert.Equal(t, 10*time.Second, cfg.LogoTimeout.Duration)
	assert.Equal(t, "codigo-qr", cfg.DownloadPrefix)
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
port: 9000
log_level: debug
logo_timeout: 3s
retention: 720h
render:
  size: 300
  margin: 2
  dark: "#112233"
  light: "#ffffff"
  level: H
webhook_ignore_agents: ["bot"]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	t.Setenv("OC_QR_PORT", "9100")
	t.Setenv("OC_QR_MAX_SIZE", "1024")
	t.Setenv("OC_QR_WEBHOOK_IGNORE_AGENTS", "curl, Googlebot ,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.LogoTimeout.Duration)
	assert.Equal(t, 720*time.Hour, cfg.Retention.Duration)
	assert.Equal(t, RenderDefaults{Size: 300, Margin: 2, Dark: "#112233", Light: "#ffffff", Level: "H", MaxSize: 1024}, cfg.Render)
	assert.Equal(t, []string{"curl", "Googlebot"}, cfg.WebhookIgnoreAgents)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OC_QR_DEFAULT_TEXT=https://example.com/scan\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("OC_QR_DEFAULT_TEXT") })

	cfg, err := Load("missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/scan", cfg.DefaultText)
}

func TestEmptyLogoURLDisablesOverlay(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OC_QR_LOGO_URL", "")

	cfg, err := Load("missing.yaml")
	require.NoError(t, err)
	assert.Empty(t, cfg.LogoURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"bad duration":  "logo_timeout: soon\n",
		"bad port":      "port: 0\n",
		"bad size":      "render:\n  size: -1\n",
		"bad margin":    "render:\n  margin: -2\n",
		"max too big":   "render:\n  max_size: 100000\n",
		"max zero":      "render:\n  max_size: 0\n",
		"size over max": "render:\n  size: 600\n  max_size: 512\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			chdir(t, dir)
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnsureDataDir(t *testing.T) {
	cfg := defaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "data")

	require.NoError(t, cfg.EnsureDataDir())
	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(cfg.DataDir, "scans.db"), cfg.DBPath())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
