package daemonrun_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	xwebdav "golang.org/x/net/webdav"

	"memecat/internal/daemonrun"
	"memecat/internal/logging"
	"memecat/internal/testsupport"
)

func pngBytes(t *testing.T, fill func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
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

func TestBuildWiresEndToEndSync(t *testing.T) {
	fs := xwebdav.NewMemFS()
	server := httptest.NewServer(&xwebdav.Handler{FileSystem: fs, LockSystem: xwebdav.NewMemLS()})
	t.Cleanup(server.Close)

	gradient := pngBytes(t, func(x, y int) uint8 { return uint8(x * 4) })
	putRemote(t, fs, "/original.png", gradient)
	putRemote(t, fs, "/repost.png", gradient)
	putRemote(t, fs, "/notes.txt", []byte("not media"))

	cfg := testsupport.NewConfig(t)
	cfg.Remote.URL = server.URL
	cfg.Remote.Root = "/"
	cfg.API.Bind = ""

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d, closeAll, err := daemonrun.Build(ctx, cfg, logging.NewNop(), "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(closeAll)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := d.TriggerSync(ctx); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		runs, err := d.SyncRuns(ctx, 1)
		if err != nil {
			t.Fatalf("SyncRuns: %v", err)
		}
		if len(runs) == 1 && runs[0].EndedAt != nil {
			if runs[0].Added != 2 || runs[0].Failed != 0 {
				t.Fatalf("unexpected run: %+v", runs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sync run did not finish")
		}
		time.Sleep(50 * time.Millisecond)
	}

	groups, err := d.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].Count != 2 {
		t.Fatalf("expected one group of two, got %+v", groups)
	}

	status := d.Status(ctx)
	names := map[string]bool{}
	for _, c := range status.Workflow.Components {
		names[c.Name] = c.Ready
	}
	if !names["catalog"] || !names["webdav"] {
		t.Fatalf("expected catalog and webdav ready, got %+v", status.Workflow.Components)
	}
	if ready, ok := names["describer"]; !ok || ready {
		t.Fatalf("expected describer reported as disabled, got %+v", status.Workflow.Components)
	}
}
