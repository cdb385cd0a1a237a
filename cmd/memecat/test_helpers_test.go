package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	xwebdav "golang.org/x/net/webdav"

	"memecat/internal/config"
	"memecat/internal/daemon"
	"memecat/internal/daemonrun"
	"memecat/internal/ipc"
	"memecat/internal/logging"
	"memecat/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	remote     xwebdav.FileSystem
	socketPath string
	configPath string
	logPath    string
}

// setupCLITestEnv runs a daemon against an in-memory WebDAV share holding two
// identical images and one unsupported file, and waits for the first sync.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	fs := xwebdav.NewMemFS()
	server := httptest.NewServer(&xwebdav.Handler{FileSystem: fs, LockSystem: xwebdav.NewMemLS()})
	t.Cleanup(server.Close)

	gradient := gradientPNG(t)
	putRemote(t, fs, "/original.png", gradient)
	putRemote(t, fs, "/repost.png", gradient)
	putRemote(t, fs, "/notes.txt", []byte("not media"))

	cfg := testsupport.NewConfig(t)
	cfg.Paths.DataDir = shortTempDir(t)
	cfg.Remote.URL = server.URL
	cfg.Remote.Root = "/"
	cfg.API.Bind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "memecat-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}
	configPath := filepath.Join(filepath.Dir(cfg.Paths.LogDir), "memecat.toml")
	writeTestConfig(t, configPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d, closeAll, err := daemonrun.Build(ctx, cfg, logging.NewNop(), logPath)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(closeAll)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	if err := d.TriggerSync(ctx); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	waitFor(t, 10*time.Second, func() bool {
		runs, err := d.SyncRuns(ctx, 1)
		return err == nil && len(runs) == 1 && runs[0].EndedAt != nil
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		remote:     fs,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		logPath:    logPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// shortTempDir keeps unix socket paths under the platform length limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mc")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func gradientPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func putRemote(t *testing.T, fs xwebdav.FileSystem, name string, data []byte) {
	t.Helper()
	f, err := fs.OpenFile(context.Background(), name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	_ = f.Close()
}

func remoteExists(fs xwebdav.FileSystem, name string) bool {
	_, err := fs.Stat(context.Background(), name)
	return err == nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
