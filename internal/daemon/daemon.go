package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/dedup"
	"memecat/internal/logging"
	"memecat/internal/merge"
	"memecat/internal/workflow"
)

// Dependencies bundles what a Daemon serves. Remote is optional and only
// used to delete files alongside catalog entries.
type Dependencies struct {
	Store    *catalog.Store
	Engine   *dedup.Engine
	Manager  *workflow.Manager
	Merger   *merge.Coordinator
	Remote   merge.RemoteDeleter
	Closers  []func() error
	LogPath  string
	Features Features
}

// Features reports optional collaborators for status output.
type Features struct {
	Describer string `json:"describer"`
	Export    bool   `json:"export"`
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *catalog.Store
	engine  *dedup.Engine
	manager *workflow.Manager
	merger  *merge.Coordinator
	remote  merge.RemoteDeleter
	closers []func() error
	logPath string
	feat    Features

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Features     Features               `json:"features"`
	CatalogPath  string                 `json:"catalog_path"`
	LockFilePath string                 `json:"lock_file_path"`
	LogPath      string                 `json:"log_path,omitempty"`
	Threshold    int                    `json:"threshold"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Engine == nil || deps.Manager == nil || deps.Merger == nil {
		return nil, errors.New("daemon requires config, store, engine, workflow manager, and merge coordinator")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		engine:   deps.Engine,
		manager:  deps.Manager,
		merger:   deps.Merger,
		remote:   deps.Remote,
		closers:  deps.Closers,
		logPath:  deps.LogPath,
		feat:     deps.Features,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, loads the clustering index, and launches
// the sync manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another memecat daemon instance is already running")
	}

	if err := d.engine.Load(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("load clustering index: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.manager.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.manager.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("memecat daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("indexed", d.engine.Index().Len()),
		logging.String(logging.FieldEventType, "daemon_started"))
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("memecat daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	for _, closer := range d.closers {
		if closer != nil {
			errs = append(errs, closer())
		}
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled
// or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.manager.Status(ctx),
		Features:     d.feat,
		CatalogPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Threshold:    d.engine.Threshold(),
	}
}
