package workflow

import (
	"context"

	"memecat/internal/catalog"
	"memecat/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool              `json:"running"`
	Syncing    bool              `json:"syncing"`
	LastError  string            `json:"last_error,omitempty"`
	LastRun    *catalog.SyncRun  `json:"last_run,omitempty"`
	Stats      catalog.Stats     `json:"stats"`
	Components []ComponentHealth `json:"components"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Syncing: m.syncing}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastRun != nil {
		run := *m.lastRun
		summary.LastRun = &run
	}
	checks := append([]HealthCheck(nil), m.checks...)
	m.mu.RUnlock()

	if summary.LastRun == nil {
		// Fall back to history so a restarted daemon still reports the last run.
		if runs, err := m.orch.store.ListRuns(ctx, 1); err == nil && len(runs) > 0 {
			summary.LastRun = runs[0]
		}
	}
	stats, err := m.orch.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read catalog stats", logging.Error(err))
	}
	summary.Stats = stats

	summary.Components = make([]ComponentHealth, 0, len(checks))
	for _, check := range checks {
		summary.Components = append(summary.Components, check.Check(ctx))
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
