package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"memecat/internal/config"
	"memecat/internal/deps"
)

const remoteTimeout = 10 * time.Second

// CheckRemote verifies the WebDAV store answers.
func CheckRemote(ctx context.Context, url string, remote Pinger) Result {
	const name = "WebDAV remote"
	if strings.TrimSpace(url) == "" {
		return Result{Name: name, Detail: "remote.url not configured"}
	}
	if remote == nil {
		return Result{Name: name, Detail: "client unavailable"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	if err := remote.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: url}
}

// CheckDescriptionProvider reports whether the AI provider is usable. It does
// not spend a request; a missing key is the common failure.
func CheckDescriptionProvider(cfg config.Description) Result {
	const name = "Description provider"
	switch cfg.Provider {
	case "none":
		return Result{Name: name, Passed: true, Detail: "disabled"}
	case "gemini", "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return Result{Name: name, Detail: cfg.Provider + " (API key missing)"}
		}
		detail := cfg.Provider
		if cfg.Model != "" {
			detail += " / " + cfg.Model
		}
		return Result{Name: name, Passed: true, Detail: detail}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps converts binary availability into results. Optional tools
// that are missing still pass with a note.
func CheckSystemDeps(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		r := Result{Name: s.Name, Passed: s.Available, Detail: s.Command}
		if !s.Available {
			r.Detail = s.Detail
			if s.Optional {
				r.Passed = true
				r.Detail += " (optional: " + strings.ToLower(s.Description) + ")"
			}
		}
		results = append(results, r)
	}
	return results
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
