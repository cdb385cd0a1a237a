package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"memecat/internal/config"
)

// Requirement defines an external binary memecat relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries the configured features need. ffmpeg is
// optional: without it video files fail to fingerprint but images still work.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{{
		Name:        "FFmpeg",
		Command:     cfg.FFmpegBinary(),
		Description: "Extracts video frames for fingerprints and descriptions",
		Optional:    true,
	}}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case status.Command == "":
			status.Detail = "command not configured"
		default:
			path, err := exec.LookPath(status.Command)
			if err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
				break
			}
			status.Available = true
			status.Command = path
		}
		results = append(results, status)
	}
	return results
}

// Satisfied reports whether every required (non-optional) dependency is available.
func Satisfied(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Optional && !s.Available {
			return false
		}
	}
	return true
}
