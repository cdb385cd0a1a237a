package config

const (
	defaultConfigPath         = "~/.config/memecat/config.toml"
	defaultDataDir            = "~/.local/share/memecat"
	defaultLogDir             = "~/.local/share/memecat/logs"
	defaultRemoteRoot         = "/"
	defaultRemoteTimeout      = 30
	defaultListingName        = "listing.json"
	defaultProvider           = "gemini"
	defaultGeminiModel        = "gemini-2.5-flash"
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultDescribeTimeout    = 120
	defaultSyncInterval       = "15m"
	defaultMaxInFlight        = 3
	defaultFetchTimeout       = 60
	defaultFetchRetries       = 2
	defaultMaxAttempts        = 3
	defaultDedupThreshold     = 10
	defaultExportInterval     = "24h"
	defaultAPIBind            = "127.0.0.1:7488"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	maxFingerprintBits        = 64
	providerGemini            = "gemini"
	providerOpenAI            = "openai"
	providerNone              = "none"
	defaultSecretsDir         = "/run/secrets"
	minimumSyncIntervalSecond = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Remote: Remote{
			Root:           defaultRemoteRoot,
			TimeoutSeconds: defaultRemoteTimeout,
			ListingName:    defaultListingName,
		},
		Description: Description{
			Provider:       defaultProvider,
			TimeoutSeconds: defaultDescribeTimeout,
		},
		Sync: Sync{
			Interval:            defaultSyncInterval,
			MaxInFlight:         defaultMaxInFlight,
			FetchTimeoutSeconds: defaultFetchTimeout,
			FetchRetries:        defaultFetchRetries,
			MaxAttempts:         defaultMaxAttempts,
			RunOnStart:          true,
		},
		Dedup: Dedup{
			Threshold:           defaultDedupThreshold,
			DeleteRemoteOnMerge: true,
		},
		Export: Export{
			Enabled:    false,
			Interval:   defaultExportInterval,
			OnShutdown: true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		FPCache: FPCache{
			Enabled: true,
		},
	}
}
