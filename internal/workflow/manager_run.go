package workflow

import (
	"context"
	"errors"
	"time"

	"memecat/internal/logging"
)

// Start begins background scheduling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.interval <= 0 {
		m.mu.Unlock()
		return errors.New("sync interval not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop(runCtx)
	return nil
}

// Stop terminates background scheduling, waits for an in-flight run to
// observe cancellation, and exports the listing when configured to.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	if m.exportEnabled && m.exportOnShutdown {
		ctx, done := context.WithTimeout(context.Background(), exportShutdownTimeout)
		defer done()
		m.export(ctx)
	}
}

// TriggerNow requests an immediate sync. It returns ErrRunInProgress when a
// run is already executing.
func (m *Manager) TriggerNow() error {
	m.mu.RLock()
	running, syncing := m.running, m.syncing
	m.mu.RUnlock()
	if !running {
		return errors.New("workflow not running")
	}
	if syncing {
		return ErrRunInProgress
	}
	select {
	case m.trigger <- struct{}{}:
	default:
		// A trigger is already queued.
	}
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var exportC <-chan time.Time
	if m.exportEnabled && m.exportInterval > 0 {
		exportTicker := time.NewTicker(m.exportInterval)
		defer exportTicker.Stop()
		exportC = exportTicker.C
	}

	if m.runOnStart {
		m.runSync(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runSync(ctx)
		case <-m.trigger:
			m.runSync(ctx)
			ticker.Reset(m.interval)
		case <-exportC:
			m.export(ctx)
		}
	}
}

func (m *Manager) runSync(ctx context.Context) {
	m.setSyncing(true)
	defer m.setSyncing(false)

	run, err := m.orch.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		m.logger.Info("sync skipped; previous run still in progress",
			logging.String(logging.FieldEventType, "sync_skipped"))
		return
	case errors.Is(err, context.Canceled):
		m.logger.Debug("sync interrupted by shutdown")
	}
	m.mu.Lock()
	m.lastErr = err
	if run != nil {
		snapshot := *run
		m.lastRun = &snapshot
	}
	m.mu.Unlock()
}

func (m *Manager) export(ctx context.Context) {
	if _, err := m.orch.ExportListing(ctx); err != nil {
		logging.WarnWithContext(m.logger, "listing export failed", "listing_export_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check WebDAV write access to the remote root"),
			logging.String(logging.FieldImpact, "remote listing.json is stale"))
		m.setLastError(err)
	}
}

func (m *Manager) setSyncing(v bool) {
	m.mu.Lock()
	m.syncing = v
	m.mu.Unlock()
}
