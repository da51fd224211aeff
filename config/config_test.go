package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RCOEM-Google-DSC/enso/fonts"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, fonts.DefaultFontFile, cfg.FontFile)
	assert.False(t, cfg.Packaged)
	assert.False(t, cfg.Presence.Enabled)
	assert.Equal(t, DiscordClientID, cfg.Presence.ClientID)
	assert.Equal(t, 15*time.Second, cfg.Presence.RetryInterval)
	assert.NotEmpty(t, cfg.AppDataDir)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enso.yaml")
	content := `
app_data_dir: /srv/enso
packaged: true
font_file: Poppins-Bold.ttf
log:
  level: debug
  format: json
presence:
  enabled: true
  retry_interval: 3s
viewer:
  command: evince
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/enso", cfg.AppDataDir)
	assert.True(t, cfg.Packaged)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Presence.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Presence.RetryInterval)
	assert.Equal(t, "evince", cfg.Viewer.Command)

	paths := cfg.FontPaths()
	assert.Equal(t, fonts.BasePaths{
		ResourcesDir:    cfg.ResourcesDir,
		DevResourcesDir: cfg.DevResourcesDir,
		AppDataDir:      "/srv/enso",
		FontFile:        "Poppins-Bold.ttf",
	}, paths)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENSO_APP_DATA_DIR", "/env/enso")
	t.Setenv("ENSO_LOG_LEVEL", "warn")
	t.Setenv("ENSO_PRESENCE_RETRY_INTERVAL", "1m")
	t.Setenv("ENSO_PACKAGED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/enso", cfg.AppDataDir)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, time.Minute, cfg.Presence.RetryInterval)
	assert.True(t, cfg.Packaged)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
