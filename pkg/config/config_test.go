package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DuplicateModeSkip, cfg.Crawl.DuplicateMode)
	assert.Equal(t, 5, cfg.Crawl.ConsecutiveDuplicateThreshold)
	assert.Equal(t, 0.6, cfg.Crawl.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Crawl.ScrollViewports)
	assert.Equal(t, 5, cfg.Crawl.MaxStaleScrolls)
	assert.Equal(t, 1, cfg.Crawl.DownloadRetries)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "mp4", cfg.Download.FileExtension)
	assert.Equal(t, "./downloads", cfg.Output.BaseDirectory)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Gallery.Name = "studio"
		cfg.Gallery.URL = "https://example.com/gallery"
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing gallery name", func(t *testing.T) {
		cfg := valid()
		cfg.Gallery.Name = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing URL", func(t *testing.T) {
		cfg := valid()
		cfg.Gallery.URL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad duplicate mode", func(t *testing.T) {
		cfg := valid()
		cfg.Crawl.DuplicateMode = "pause"
		assert.Error(t, cfg.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Crawl.ConfidenceThreshold = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative max downloads", func(t *testing.T) {
		cfg := valid()
		cfg.Crawl.MaxDownloads = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative download retries", func(t *testing.T) {
		cfg := valid()
		cfg.Crawl.DownloadRetries = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
gallery:
  name: studio
  url: https://example.com/gallery
  selectors:
    grid_container: "#gallery"
    grid_item: ".thumb"
crawl:
  duplicate_mode: stop
  max_downloads: 25
  consecutive_duplicate_threshold: 8
output:
  base_directory: /tmp/media
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "studio", cfg.Gallery.Name)
	assert.Equal(t, DuplicateModeStop, cfg.Crawl.DuplicateMode)
	assert.Equal(t, 25, cfg.Crawl.MaxDownloads)
	assert.Equal(t, 8, cfg.Crawl.ConsecutiveDuplicateThreshold)
	assert.Equal(t, "#gallery", cfg.Gallery.Selectors.GridContainer)
	assert.Equal(t, "/tmp/media", cfg.Output.BaseDirectory)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.6, cfg.Crawl.ConfidenceThreshold)
}

func TestLoadFromFileMissingIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GALLERYGRAB_URL", "https://env.example.com")
	t.Setenv("GALLERYGRAB_GALLERY", "envgallery")
	t.Setenv("GALLERYGRAB_DUPLICATE_MODE", "STOP")
	t.Setenv("GALLERYGRAB_MAX_DOWNLOADS", "7")
	t.Setenv("GALLERYGRAB_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://env.example.com", cfg.Gallery.URL)
	assert.Equal(t, "envgallery", cfg.Gallery.Name)
	assert.Equal(t, DuplicateModeStop, cfg.Crawl.DuplicateMode)
	assert.Equal(t, 7, cfg.Crawl.MaxDownloads)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Gallery.Name = "studio"
	cfg.Gallery.URL = "https://example.com"
	cfg.Crawl.MaxDownloads = 42
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 42, loaded.Crawl.MaxDownloads)
	assert.Equal(t, "studio", loaded.Gallery.Name)
}
