package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	if err := c.normalizeDescription(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeExport()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() {
	c.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Remote.URL), "/")
	if c.Remote.URL == "" {
		c.Remote.URL = strings.TrimRight(lookupSecret("MEMECAT_WEBDAV_URL"), "/")
	}
	if strings.TrimSpace(c.Remote.Username) == "" {
		c.Remote.Username = lookupSecret("MEMECAT_WEBDAV_USERNAME")
	}
	if c.Remote.Password == "" {
		c.Remote.Password = lookupSecret("MEMECAT_WEBDAV_PASSWORD")
	}
	c.Remote.Root = strings.TrimSpace(c.Remote.Root)
	if c.Remote.Root == "" {
		c.Remote.Root = defaultRemoteRoot
	}
	if !strings.HasPrefix(c.Remote.Root, "/") {
		c.Remote.Root = "/" + c.Remote.Root
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = defaultRemoteTimeout
	}
	c.Remote.ListingName = strings.TrimSpace(c.Remote.ListingName)
	if c.Remote.ListingName == "" {
		c.Remote.ListingName = defaultListingName
	}
}

func (c *Config) normalizeDescription() error {
	c.Description.Provider = strings.ToLower(strings.TrimSpace(c.Description.Provider))
	if c.Description.Provider == "" {
		c.Description.Provider = defaultProvider
	}
	c.Description.APIKey = strings.TrimSpace(c.Description.APIKey)
	c.Description.Model = strings.TrimSpace(c.Description.Model)
	c.Description.BaseURL = strings.TrimSpace(c.Description.BaseURL)
	switch c.Description.Provider {
	case providerGemini:
		if c.Description.APIKey == "" {
			c.Description.APIKey = lookupSecret("GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
		if c.Description.Model == "" {
			c.Description.Model = defaultGeminiModel
		}
	case providerOpenAI:
		if c.Description.APIKey == "" {
			c.Description.APIKey = lookupSecret("OPENAI_API_KEY")
		}
		if c.Description.Model == "" {
			c.Description.Model = defaultOpenAIModel
		}
	}
	if c.Description.TimeoutSeconds <= 0 {
		c.Description.TimeoutSeconds = defaultDescribeTimeout
	}
	if strings.TrimSpace(c.Description.PromptPath) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Description.PromptPath))
		if err != nil {
			return fmt.Errorf("description.prompt_path: %w", err)
		}
		c.Description.PromptPath = expanded
	}
	return nil
}

func (c *Config) normalizeSync() {
	c.Sync.Interval = strings.TrimSpace(c.Sync.Interval)
	if c.Sync.Interval == "" {
		c.Sync.Interval = defaultSyncInterval
	}
	if c.Sync.MaxInFlight <= 0 {
		c.Sync.MaxInFlight = defaultMaxInFlight
	}
	if c.Sync.FetchTimeoutSeconds <= 0 {
		c.Sync.FetchTimeoutSeconds = defaultFetchTimeout
	}
}

func (c *Config) normalizeExport() {
	c.Export.Interval = strings.TrimSpace(c.Export.Interval)
	if c.Export.Interval == "" {
		c.Export.Interval = defaultExportInterval
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = lookupSecret("MEMECAT_API_TOKEN")
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	if level == "warning" {
		level = "warn"
	}
	c.Logging.Level = level
}
