package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// secretsDir is where container secrets are mounted. Tests override it.
var secretsDir = defaultSecretsDir

// lookupSecret returns the first non-empty value among the named environment
// variables, falling back to files of the same (lower-cased) names under the
// secrets directory.
func lookupSecret(names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	for _, name := range names {
		for _, candidate := range []string{name, strings.ToLower(name)} {
			data, err := os.ReadFile(filepath.Join(secretsDir, candidate))
			if err != nil {
				continue
			}
			if value := strings.TrimSpace(string(data)); value != "" {
				return value
			}
		}
	}
	return ""
}

// ParseInterval accepts Go duration strings ("15m", "1h30m") as well as the
// single-unit forms used by older deployments ("15min", "24h", "2d", "30sec").
func ParseInterval(value string) (time.Duration, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return 0, fmt.Errorf("empty interval")
	}
	if d, err := time.ParseDuration(trimmed); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval %q must be positive", value)
		}
		return d, nil
	}

	idx := 0
	for idx < len(trimmed) && trimmed[idx] >= '0' && trimmed[idx] <= '9' {
		idx++
	}
	if idx == 0 {
		return 0, fmt.Errorf("invalid interval %q", value)
	}
	amount, err := strconv.Atoi(trimmed[:idx])
	if err != nil || amount <= 0 {
		return 0, fmt.Errorf("invalid interval %q", value)
	}
	var unit time.Duration
	switch strings.TrimSpace(trimmed[idx:]) {
	case "s", "sec", "secs", "second", "seconds":
		unit = time.Second
	case "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", value)
	}
	return time.Duration(amount) * unit, nil
}
