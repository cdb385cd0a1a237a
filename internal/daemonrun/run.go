package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/daemon"
	"memecat/internal/dedup"
	"memecat/internal/fingerprint"
	"memecat/internal/fpcache"
	"memecat/internal/ipc"
	"memecat/internal/logging"
	"memecat/internal/merge"
	"memecat/internal/preflight"
	"memecat/internal/services/ffmpeg"
	"memecat/internal/services/llm"
	"memecat/internal/services/webdav"
	"memecat/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the memecat daemon and blocks until SIGINT/SIGTERM or a remote
// stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.ValidateRemote(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath, logger, err := newLogger(cfg, opts)
	if err != nil {
		return err
	}

	d, closeAll, err := Build(signalCtx, cfg, logger, logPath)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon setup failed", "daemon_setup_failed", logging.Error(err))
		return err
	}
	defer closeAll()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	// The lock is held from here on, so the socket belongs to this process.
	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("memecat daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Build wires every collaborator the daemon needs. The returned func releases
// them in reverse order; it also closes the catalog via the daemon.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, logPath string) (*daemon.Daemon, func(), error) {
	var closers []func() error
	fail := func(err error) (*daemon.Daemon, func(), error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, nil, err
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		return fail(fmt.Errorf("open catalog: %w", err))
	}
	closers = append(closers, store.Close)

	cache, err := fpcache.Open(cfg.FPCachePath(), logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, cache.Close)

	remote, err := webdav.New(cfg.Remote, logger)
	if err != nil {
		return fail(err)
	}

	frames := ffmpeg.NewExtractor("", ffmpeg.WithBinary(cfg.FFmpegBinary()))
	describer, err := llm.New(ctx, cfg.Description, frames, logger)
	if err != nil {
		return fail(err)
	}
	if describer != nil {
		closers = append(closers, describer.Close)
	}

	logPreflight(ctx, cfg, remote, logger)

	engine := dedup.NewEngine(store, cfg.Dedup.Threshold, logger)
	deps := workflow.Dependencies{
		Store:         store,
		Engine:        engine,
		Lister:        remote,
		Fingerprinter: fingerprint.NewComputer(frames),
		Cache:         cache,
	}
	if describer != nil {
		deps.Describer = describer
	}
	if cfg.Export.Enabled {
		deps.Uploader = remote
	}
	orch, err := workflow.NewOrchestrator(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}

	manager := workflow.NewManager(cfg, orch, logger, workflow.WithHealthChecks(
		workflow.PingCheck{Name: "catalog", Ping: store.Ping},
		workflow.PingCheck{Name: "webdav", Ping: remote.Ping},
		describerHealth(cfg.Description, describer != nil),
	))

	// The daemon closes the store itself.
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:    store,
		Engine:   engine,
		Manager:  manager,
		Merger:   merge.NewCoordinator(engine, remote, cfg.Dedup.DeleteRemoteOnMerge, logger),
		Remote:   remote,
		Closers:  closers[1:],
		LogPath:  logPath,
		Features: daemon.Features{Describer: cfg.Description.Provider, Export: cfg.Export.Enabled},
	}, logger)
	if err != nil {
		return fail(err)
	}
	return d, func() { _ = d.Close() }, nil
}

func describerHealth(cfg config.Description, enabled bool) workflow.HealthCheck {
	if !enabled {
		return workflow.StaticCheck(workflow.UnhealthyComponent("describer", "provider disabled"))
	}
	return workflow.StaticCheck(workflow.ComponentHealth{Name: "describer", Ready: true, Detail: cfg.Provider})
}

func logPreflight(ctx context.Context, cfg *config.Config, remote preflight.Pinger, logger *slog.Logger) {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg, remote)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "sync runs may fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "run memecat doctor for details"))
	}
}

func newLogger(cfg *config.Config, opts Options) (string, *slog.Logger, error) {
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("memecat-%s.log", stamp))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return "", nil, fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update memecat.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "memecat-*.log", Exclude: []string{logPath}},
	)
	return logPath, logger, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "memecat.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
