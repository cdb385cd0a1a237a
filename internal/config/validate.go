package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDescription(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateRemote reports whether the remote store is configured. Commands that
// only read the catalog do not need it, so Validate does not enforce it.
func (c *Config) ValidateRemote() error {
	if strings.TrimSpace(c.Remote.URL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("remote.url is required. Set MEMECAT_WEBDAV_URL or edit %s (create with 'memecat config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Remote.URL, "http://") && !strings.HasPrefix(c.Remote.URL, "https://") {
		return fmt.Errorf("remote.url must be an http(s) URL, got %q", c.Remote.URL)
	}
	return nil
}

func (c *Config) validateDescription() error {
	switch c.Description.Provider {
	case providerGemini, providerOpenAI:
		if c.Description.APIKey == "" {
			return fmt.Errorf("description.api_key is required for provider %q", c.Description.Provider)
		}
	case providerNone:
	default:
		return fmt.Errorf("description.provider: unsupported value %q (expected gemini, openai, or none)", c.Description.Provider)
	}
	if c.Description.RequestsPerMinute < 0 {
		return errors.New("description.requests_per_minute must be zero or positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.max_in_flight":          c.Sync.MaxInFlight,
		"sync.fetch_timeout_seconds":  c.Sync.FetchTimeoutSeconds,
		"remote.timeout_seconds":      c.Remote.TimeoutSeconds,
		"description.timeout_seconds": c.Description.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Sync.FetchRetries < 0 {
		return errors.New("sync.fetch_retries must be zero or positive")
	}
	if c.Sync.MaxAttempts < 0 {
		return errors.New("sync.max_attempts must be zero or positive")
	}
	interval, err := ParseInterval(c.Sync.Interval)
	if err != nil {
		return fmt.Errorf("sync.interval: %w", err)
	}
	if interval.Seconds() < minimumSyncIntervalSecond {
		return fmt.Errorf("sync.interval must be at least %ds", minimumSyncIntervalSecond)
	}
	return nil
}

func (c *Config) validateDedup() error {
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > maxFingerprintBits {
		return fmt.Errorf("dedup.threshold must be between 0 and %d", maxFingerprintBits)
	}
	return nil
}

func (c *Config) validateExport() error {
	if !c.Export.Enabled {
		return nil
	}
	if _, err := ParseInterval(c.Export.Interval); err != nil {
		return fmt.Errorf("export.interval: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
