package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/workflow"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir, err := os.MkdirTemp("", "mcctl")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	cfg.Paths.DataDir = dir
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	return &cfg
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testConfig(t)
	if _, err := StopAndTerminate(cfg, 0); err != ErrDaemonNotRunning {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	running, pid, err := ProcessInfo(cfg.SocketPath())
	if err != nil || running || pid != 0 {
		t.Fatalf("unexpected process info: %v %d %v", running, pid, err)
	}
}

func TestOfflineSnapshotReadsCatalog(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	snap, err := BuildStatusSnapshot(ctx, cfg, 5)
	if err != nil {
		t.Fatalf("snapshot without catalog: %v", err)
	}
	if snap.Running || snap.Daemon != nil || snap.Stats.Items != 0 {
		t.Fatalf("unexpected empty snapshot: %+v", snap)
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	if _, _, err := store.UpsertRemote(ctx, catalog.RemoteMeta{Filename: "a.png", RemotePath: "/a.png"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = store.Close()

	snap, err = BuildStatusSnapshot(ctx, cfg, 5)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Stats.Items != 1 {
		t.Fatalf("expected one item, got %+v", snap.Stats)
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "memecat.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
	if _, err := ForceKillProcess(filepath.Join(dir, "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error without pid")
	}
}

func TestComponentLines(t *testing.T) {
	ready, degraded := ComponentLines(workflow.StatusSummary{Components: []workflow.ComponentHealth{
		workflow.HealthyComponent("catalog"),
		workflow.UnhealthyComponent("webdav", "timeout"),
	}})
	if len(ready) != 1 || len(degraded) != 1 || degraded[0].Detail != "timeout" {
		t.Fatalf("unexpected split: %+v %+v", ready, degraded)
	}
}
