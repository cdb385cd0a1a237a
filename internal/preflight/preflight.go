package preflight

import (
	"context"

	"memecat/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Pinger probes a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes every applicable check. remote may be nil when the caller
// could not build a client; the remote check then reports the configuration
// gap instead.
func RunAll(ctx context.Context, cfg *config.Config, remote Pinger) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckRemote(ctx, cfg.Remote.URL, remote),
		CheckDescriptionProvider(cfg.Description),
	}
	return append(results, CheckSystemDeps(cfg)...)
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
