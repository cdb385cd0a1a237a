package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"memecat/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"MEMECAT_WEBDAV_URL", "MEMECAT_WEBDAV_USERNAME", "MEMECAT_WEBDAV_PASSWORD",
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "MEMECAT_API_TOKEN",
	} {
		t.Setenv(name, "")
	}
	t.Cleanup(config.SetSecretsDir(filepath.Join(home, "secrets")))
	t.Chdir(home)
	return home
}

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	home := isolate(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("MEMECAT_WEBDAV_URL", "https://dav.example.com/files/")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(home, ".local", "share", "memecat")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Description.APIKey != "test-key" {
		t.Fatalf("expected API key from env, got %q", cfg.Description.APIKey)
	}
	if cfg.Description.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected default model %q", cfg.Description.Model)
	}
	if cfg.Remote.URL != "https://dav.example.com/files" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.URL)
	}
	if err := cfg.ValidateRemote(); err != nil {
		t.Fatalf("ValidateRemote: %v", err)
	}
	if cfg.Dedup.Threshold != 10 {
		t.Fatalf("unexpected threshold %d", cfg.Dedup.Threshold)
	}
	if cfg.SyncInterval() != 15*time.Minute {
		t.Fatalf("unexpected sync interval %s", cfg.SyncInterval())
	}
	if cfg.CatalogPath() != filepath.Join(wantData, "catalog.db") {
		t.Fatalf("unexpected catalog path %q", cfg.CatalogPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "memecat.toml")

	type payload struct {
		Description struct {
			Provider string `toml:"provider"`
			APIKey   string `toml:"api_key"`
		} `toml:"description"`
		Sync struct {
			Interval    string `toml:"interval"`
			MaxInFlight int    `toml:"max_in_flight"`
		} `toml:"sync"`
		Dedup struct {
			Threshold int `toml:"threshold"`
		} `toml:"dedup"`
		API struct {
			Bind string `toml:"bind"`
		} `toml:"api"`
	}
	custom := payload{}
	custom.Description.Provider = "OpenAI"
	custom.Description.APIKey = "sk-test"
	custom.Sync.Interval = "30min"
	custom.Sync.MaxInFlight = 8
	custom.Dedup.Threshold = 6
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Description.Provider != "openai" {
		t.Fatalf("expected provider lower-cased, got %q", cfg.Description.Provider)
	}
	if cfg.Description.Model != "gpt-4o-mini" {
		t.Fatalf("expected openai default model, got %q", cfg.Description.Model)
	}
	if cfg.SyncInterval() != 30*time.Minute {
		t.Fatalf("unexpected interval %s", cfg.SyncInterval())
	}
	if cfg.Sync.MaxInFlight != 8 || cfg.Dedup.Threshold != 6 {
		t.Fatalf("custom values not applied: %+v %+v", cfg.Sync, cfg.Dedup)
	}
	if cfg.API.Bind != "" {
		t.Fatalf("expected explicit empty bind to disable the API, got %q", cfg.API.Bind)
	}
}

func TestLoadReadsDockerSecrets(t *testing.T) {
	home := isolate(t)
	secrets := filepath.Join(home, "secrets")
	if err := os.MkdirAll(secrets, 0o755); err != nil {
		t.Fatalf("mkdir secrets: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secrets, "gemini_api_key"), []byte("from-secret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secrets, "MEMECAT_WEBDAV_PASSWORD"), []byte("hunter2"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Description.APIKey != "from-secret" {
		t.Fatalf("expected key from secret file, got %q", cfg.Description.APIKey)
	}
	if cfg.Remote.Password != "hunter2" {
		t.Fatalf("expected password from secret file, got %q", cfg.Remote.Password)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"threshold", func(c *config.Config) { c.Dedup.Threshold = 65 }, "dedup.threshold"},
		{"provider", func(c *config.Config) { c.Description.Provider = "bard" }, "description.provider"},
		{"missing key", func(c *config.Config) { c.Description.APIKey = "" }, "description.api_key"},
		{"interval", func(c *config.Config) { c.Sync.Interval = "soon" }, "sync.interval"},
		{"too frequent", func(c *config.Config) { c.Sync.Interval = "1s" }, "at least"},
		{"in flight", func(c *config.Config) { c.Sync.MaxInFlight = 0 }, "sync.max_in_flight"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		cfg.Description.APIKey = "key"
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in %v", tc.name, tc.want, err)
		}
	}
}

func TestProviderNoneNeedsNoKey(t *testing.T) {
	cfg := config.Default()
	cfg.Description.Provider = "none"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRemoteRequiresURL(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateRemote(); err == nil {
		t.Fatal("expected missing remote url error")
	}
	cfg.Remote.URL = "ftp://example.com"
	if err := cfg.ValidateRemote(); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"15m":    15 * time.Minute,
		"15min":  15 * time.Minute,
		"24h":    24 * time.Hour,
		"30s":    30 * time.Second,
		"2d":     48 * time.Hour,
		"1h30m":  90 * time.Minute,
		" 5MIN ": 5 * time.Minute,
	}
	for input, want := range cases {
		got, err := config.ParseInterval(input)
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseInterval(%q) = %s, want %s", input, got, want)
		}
	}
	for _, bad := range []string{"", "min", "0m", "10 parsecs", "-5m"} {
		if _, err := config.ParseInterval(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "k")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Remote.Root != "/memes" {
		t.Fatalf("unexpected sample root %q", cfg.Remote.Root)
	}
}
