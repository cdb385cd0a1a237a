package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local state directories.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Remote contains WebDAV connection settings for the mirrored file store.
type Remote struct {
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Root           string `toml:"root"`
	Recursive      bool   `toml:"recursive"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ListingName    string `toml:"listing_name"`
}

// Description contains settings for the AI description provider.
type Description struct {
	// Provider selects the backend: "gemini", "openai", or "none".
	Provider          string `toml:"provider"`
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	BaseURL           string `toml:"base_url"`
	PromptPath        string `toml:"prompt_path"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Sync contains reconciliation scheduling and per-item limits.
type Sync struct {
	Interval            string `toml:"interval"`
	MaxInFlight         int    `toml:"max_in_flight"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	FetchRetries        int    `toml:"fetch_retries"`
	// MaxAttempts caps consecutive failed attempts per item. Zero retries forever.
	MaxAttempts int  `toml:"max_attempts"`
	RunOnStart  bool `toml:"run_on_start"`
}

// Dedup contains duplicate clustering settings.
type Dedup struct {
	Threshold           int  `toml:"threshold"`
	DeleteRemoteOnMerge bool `toml:"delete_remote_on_merge"`
}

// Export contains listing export settings.
type Export struct {
	Enabled    bool   `toml:"enabled"`
	Interval   string `toml:"interval"`
	OnShutdown bool   `toml:"on_shutdown"`
}

// API contains HTTP API settings. An empty bind disables the server.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// FPCache contains fingerprint memo settings.
type FPCache struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for memecat.
//
// Configuration sections by subsystem:
//   - Paths: catalog database, lock, socket, and log locations
//   - Remote: WebDAV store that is mirrored into the catalog
//   - Description: AI description provider
//   - Sync: reconciliation interval, concurrency, and timeouts
//   - Dedup: Hamming threshold and merge behaviour
//   - Export: listing.json export back to the remote store
//   - API: HTTP API bind address and token
//   - Logging: log format, level, and retention
//   - FPCache: content-addressed fingerprint memo
type Config struct {
	Paths       Paths       `toml:"paths"`
	Remote      Remote      `toml:"remote"`
	Description Description `toml:"description"`
	Sync        Sync        `toml:"sync"`
	Dedup       Dedup       `toml:"dedup"`
	Export      Export      `toml:"export"`
	API         API         `toml:"api"`
	Logging     Logging     `toml:"logging"`
	FPCache     FPCache     `toml:"fpcache"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("memecat.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogPath returns the SQLite catalog database location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// FPCachePath returns the fingerprint memo location, or "" when disabled.
func (c *Config) FPCachePath() string {
	if !c.FPCache.Enabled {
		return ""
	}
	return filepath.Join(c.Paths.DataDir, "fpcache.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "memecat.lock")
}

// PIDPath returns the file the running daemon writes its process ID to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "memecat.pid")
}

// SocketPath returns the daemon control socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "memecat.sock")
}

// FFmpegBinary returns the ffmpeg executable name used for video frames.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// SyncInterval returns the parsed reconciliation interval.
func (c *Config) SyncInterval() time.Duration {
	d, _ := ParseInterval(c.Sync.Interval)
	return d
}

// ExportInterval returns the parsed listing export interval.
func (c *Config) ExportInterval() time.Duration {
	d, _ := ParseInterval(c.Export.Interval)
	return d
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
