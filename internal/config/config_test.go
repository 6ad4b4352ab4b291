package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkstore.yaml")
	require.NoError(t, SaveTemplate(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://nllapps.com/store/api/", cfg.Store.CatalogURL)
	assert.Equal(t, time.Hour, cfg.Store.RefreshInterval)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.HTTP.MaxDelay)
	assert.Equal(t, installer.DefaultAliveWatermark, cfg.Installer.AliveWatermark)
	assert.Equal(t, installer.Immediate, cfg.Confirmation())
	assert.NotEmpty(t, cfg.Store.DownloadDir)
	assert.Equal(t, cfg.Store.DownloadDir, cfg.Store.CacheDir)

	_, auto, err := cfg.Tier()
	require.NoError(t, err)
	assert.True(t, auto)
}

func TestSaveTemplateKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lang: zh\n"), 0o644))

	err := SaveTemplate(path, false)
	assert.Equal(t, apperrors.ErrorTypeFileSystem, apperrors.TypeOf(err))

	require.NoError(t, SaveTemplate(path, true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "catalog_url")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("installer:\n  tier: legacy\nhttp:\n  max_retries: 5\n"), 0o644))
	t.Setenv("APKSTORE_HTTP_MAX_RETRIES", "1")
	t.Setenv("APKSTORE_ADB_DEVICE", "emulator-5554")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.HTTP.MaxRetries)
	assert.Equal(t, "emulator-5554", cfg.ADB.Device)

	tier, auto, err := cfg.Tier()
	require.NoError(t, err)
	assert.False(t, auto)
	assert.Equal(t, installer.TierLegacy, tier)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"tier":         "installer:\n  tier: turbo\n",
		"confirmation": "installer:\n  confirmation: later\n",
		"watermark":    "installer:\n  alive_watermark: 1.5\n",
		"retries":      "http:\n  max_retries: -1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "apkstore.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.Equal(t, apperrors.ErrorTypeConfiguration, apperrors.TypeOf(err))
		})
	}
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unterminated\n"), 0o644))
	_, err := Load(path)
	assert.Equal(t, apperrors.ErrorTypeConfiguration, apperrors.TypeOf(err))
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	out, err := cfg.YAML()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "store")
	assert.Contains(t, decoded, "installer")
}
