package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/logging"
)

const exportShutdownTimeout = 30 * time.Second

// Manager schedules reconciliation passes and listing exports.
type Manager struct {
	orch   *Orchestrator
	logger *slog.Logger

	interval         time.Duration
	runOnStart       bool
	exportEnabled    bool
	exportInterval   time.Duration
	exportOnShutdown bool

	checks  []HealthCheck
	trigger chan struct{}

	mu      sync.RWMutex
	running bool
	syncing bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastRun *catalog.SyncRun
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithHealthChecks registers component probes reported by Status.
func WithHealthChecks(checks ...HealthCheck) ManagerOption {
	return func(m *Manager) {
		m.checks = append(m.checks, checks...)
	}
}

// WithInterval overrides the sync interval from configuration.
func WithInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// NewManager constructs a workflow manager around orch.
func NewManager(cfg *config.Config, orch *Orchestrator, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		orch:             orch,
		logger:           logging.NewComponentLogger(logger, "workflow-manager"),
		interval:         cfg.SyncInterval(),
		runOnStart:       cfg.Sync.RunOnStart,
		exportEnabled:    cfg.Export.Enabled && orch.uploader != nil,
		exportInterval:   cfg.ExportInterval(),
		exportOnShutdown: cfg.Export.OnShutdown,
		trigger:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Orchestrator returns the orchestrator driven by the manager.
func (m *Manager) Orchestrator() *Orchestrator { return m.orch }
