package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DuplicateMode controls what the crawl does when it meets an item whose
// fingerprint is already in the checkpoint log.
type DuplicateMode string

const (
	// DuplicateModeStop terminates the run on the first duplicate.
	DuplicateModeStop DuplicateMode = "stop"
	// DuplicateModeSkip fast-forwards past duplicates to find new content.
	DuplicateModeSkip DuplicateMode = "skip"
)

// Config holds all configuration options for the gallery crawler
type Config struct {
	// Target gallery and its viewport selectors
	Gallery GalleryConfig `yaml:"gallery" json:"gallery"`

	// Crawl orchestration settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GalleryConfig identifies the target site and carries the selector map
// consumed by the viewport adapter. Selectors are configuration data, never
// interpreted by the crawl core.
type GalleryConfig struct {
	// Name keys the checkpoint log and the output folder.
	Name string `yaml:"name" json:"name"`
	// URL is the gallery overview page.
	URL string `yaml:"url" json:"url"`
	// SessionCookie is the authentication cookie name expected by the site.
	SessionCookie string `yaml:"session_cookie" json:"session_cookie"`
	// Selectors maps the adapter's named regions and anchors to site
	// selectors.
	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`
}

// SelectorConfig is the site-specific selector map. Every selector the
// adapter needs lives here; the crawl core never branches on these strings.
type SelectorConfig struct {
	GridContainer   string `yaml:"grid_container" json:"grid_container"`
	GridItem        string `yaml:"grid_item" json:"grid_item"`
	GridTimestamp   string `yaml:"grid_timestamp" json:"grid_timestamp"`
	GridPrompt      string `yaml:"grid_prompt" json:"grid_prompt"`
	DetailView      string `yaml:"detail_view" json:"detail_view"`
	DetailTimestamp string `yaml:"detail_timestamp" json:"detail_timestamp"`
	TimestampLabel  string `yaml:"timestamp_label" json:"timestamp_label"`
	DetailPrompt    string `yaml:"detail_prompt" json:"detail_prompt"`
	PromptLabel     string `yaml:"prompt_label" json:"prompt_label"`
	DetailMedia     string `yaml:"detail_media" json:"detail_media"`
	DownloadButton  string `yaml:"download_button" json:"download_button"`
	NextItemButton  string `yaml:"next_item_button" json:"next_item_button"`
	// NavIndicator is the post-navigation marker checked after clicking a
	// grid item to verify the view actually changed.
	NavIndicator string `yaml:"nav_indicator" json:"nav_indicator"`
}

// CrawlConfig holds the orchestration knobs
type CrawlConfig struct {
	// DuplicateMode is "stop" or "skip".
	DuplicateMode DuplicateMode `yaml:"duplicate_mode" json:"duplicate_mode"`
	// MaxDownloads bounds the run; 0 means unlimited.
	MaxDownloads int `yaml:"max_downloads" json:"max_downloads"`
	// ConsecutiveDuplicateThreshold is how many duplicates in a row are
	// tolerated on the cheap per-item path before escalating to a boundary
	// search.
	ConsecutiveDuplicateThreshold int `yaml:"consecutive_duplicate_threshold" json:"consecutive_duplicate_threshold"`
	// ConfidenceThreshold is the minimum extraction confidence accepted
	// before falling through to the next strategy.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	// ScrollViewports is the scroll distance per pass, in viewport heights.
	ScrollViewports int `yaml:"scroll_viewports" json:"scroll_viewports"`
	// MaxStaleScrolls is how many consecutive scrolls may yield zero new
	// items before the scan session is declared exhausted.
	MaxStaleScrolls int `yaml:"max_stale_scrolls" json:"max_stale_scrolls"`
	// StabilizeTimeout bounds the wait for the grid item count to settle
	// after a scroll.
	StabilizeTimeout time.Duration `yaml:"stabilize_timeout" json:"stabilize_timeout"`
	// ClickRetries bounds attempts to open a single item before skipping it.
	ClickRetries int `yaml:"click_retries" json:"click_retries"`
	// GridFailureLimit is how many consecutive navigation failures on the
	// overview grid itself are tolerated before the run terminates.
	GridFailureLimit int `yaml:"grid_failure_limit" json:"grid_failure_limit"`
	// ActionsPerMinute paces browser operations; 0 disables pacing.
	ActionsPerMinute int `yaml:"actions_per_minute" json:"actions_per_minute"`
	// DownloadRetries is how many extra attempts a failed download gets
	// before an incomplete placeholder is recorded and the crawl moves on.
	DownloadRetries int `yaml:"download_retries" json:"download_retries"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	// Timeout bounds one browser download from trigger to completion.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// FileExtension is the library filename extension used when the
	// gallery does not suggest one.
	FileExtension string `yaml:"file_extension" json:"file_extension"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory        string `yaml:"base_directory" json:"base_directory"`
	CreateGalleryFolders bool   `yaml:"create_gallery_folders" json:"create_gallery_folders"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Gallery: GalleryConfig{
			SessionCookie: "session",
		},
		Crawl: CrawlConfig{
			DuplicateMode:                 DuplicateModeSkip,
			MaxDownloads:                  0,
			ConsecutiveDuplicateThreshold: 5,
			ConfidenceThreshold:           0.6,
			ScrollViewports:               3,
			MaxStaleScrolls:               5,
			StabilizeTimeout:              5 * time.Second,
			ClickRetries:                  3,
			GridFailureLimit:              3,
			ActionsPerMinute:              120,
			DownloadRetries:               1,
		},
		Download: DownloadConfig{
			Timeout:       30 * time.Second,
			FileExtension: "mp4",
		},
		Output: OutputConfig{
			BaseDirectory:        "./downloads",
			CreateGalleryFolders: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration overrides from environment variables.
// A .env file in the working directory is honored when present.
func (c *Config) LoadFromEnv() error {
	// Not an error when missing; mirrors godotenv's intended usage.
	_ = godotenv.Load()

	if url := os.Getenv("GALLERYGRAB_URL"); url != "" {
		c.Gallery.URL = url
	}
	if name := os.Getenv("GALLERYGRAB_GALLERY"); name != "" {
		c.Gallery.Name = name
	}
	if outputDir := os.Getenv("GALLERYGRAB_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if mode := os.Getenv("GALLERYGRAB_DUPLICATE_MODE"); mode != "" {
		c.Crawl.DuplicateMode = DuplicateMode(strings.ToLower(mode))
	}
	if max := os.Getenv("GALLERYGRAB_MAX_DOWNLOADS"); max != "" {
		if val, err := strconv.Atoi(max); err == nil && val >= 0 {
			c.Crawl.MaxDownloads = val
		}
	}
	if threshold := os.Getenv("GALLERYGRAB_DUPLICATE_THRESHOLD"); threshold != "" {
		if val, err := strconv.Atoi(threshold); err == nil && val > 0 {
			c.Crawl.ConsecutiveDuplicateThreshold = val
		}
	}
	if level := os.Getenv("GALLERYGRAB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".gallerygrab.yaml",
		".gallerygrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "gallerygrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "gallerygrab", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".gallerygrab.yaml"),
		filepath.Join(os.Getenv("HOME"), ".gallerygrab.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Gallery.Name == "" {
		errs = append(errs, errors.New("gallery name is required"))
	}
	if c.Gallery.URL == "" {
		errs = append(errs, errors.New("gallery URL is required"))
	}

	switch c.Crawl.DuplicateMode {
	case DuplicateModeStop, DuplicateModeSkip:
	default:
		errs = append(errs, fmt.Errorf("invalid duplicate mode %q", c.Crawl.DuplicateMode))
	}
	if c.Crawl.MaxDownloads < 0 {
		errs = append(errs, errors.New("max downloads cannot be negative"))
	}
	if c.Crawl.ConsecutiveDuplicateThreshold <= 0 {
		errs = append(errs, errors.New("consecutive duplicate threshold must be positive"))
	}
	if c.Crawl.ConfidenceThreshold < 0 || c.Crawl.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("confidence threshold must be in [0,1]"))
	}
	if c.Crawl.ScrollViewports <= 0 {
		errs = append(errs, errors.New("scroll viewports must be positive"))
	}
	if c.Crawl.MaxStaleScrolls <= 0 {
		errs = append(errs, errors.New("max stale scrolls must be positive"))
	}
	if c.Crawl.ClickRetries <= 0 {
		errs = append(errs, errors.New("click retries must be positive"))
	}

	if c.Crawl.DownloadRetries < 0 {
		errs = append(errs, errors.New("download retries cannot be negative"))
	}

	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load builds the effective configuration: defaults, then file, then
// environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
