package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"testing"
)

func stubCommand(t *testing.T, mode string, calls *[][]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*calls = append(*calls, append([]string(nil), args...))
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--")
		cmd.Args = append(cmd.Args, args...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestFirstFrameSeeksPastIntro(t *testing.T) {
	var calls [][]string
	stubCommand(t, "frame", &calls)

	frame, err := NewExtractor(t.TempDir()).FirstFrame(context.Background(), []byte("video"))
	if err != nil {
		t.Fatalf("FirstFrame: %v", err)
	}
	if string(frame) != "PNG:seek" {
		t.Fatalf("unexpected frame %q", frame)
	}
	if len(calls) != 1 || !slices.Contains(calls[0], "-ss") || !slices.Contains(calls[0], "pipe:1") {
		t.Fatalf("unexpected ffmpeg args %v", calls)
	}
}

func TestFirstFrameFallsBackForShortClips(t *testing.T) {
	var calls [][]string
	stubCommand(t, "short", &calls)

	frame, err := NewExtractor(t.TempDir()).FirstFrame(context.Background(), []byte("video"))
	if err != nil {
		t.Fatalf("FirstFrame: %v", err)
	}
	if string(frame) != "PNG:start" {
		t.Fatalf("unexpected frame %q", frame)
	}
	if len(calls) != 2 || slices.Contains(calls[1], "-ss") {
		t.Fatalf("expected fallback without seek, got %v", calls)
	}
}

func TestFirstFrameReportsStderr(t *testing.T) {
	var calls [][]string
	stubCommand(t, "fail", &calls)

	_, err := NewExtractor(t.TempDir()).FirstFrame(context.Background(), []byte("video"))
	if err == nil || !strings.Contains(err.Error(), "invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestFirstFrameRejectsEmptyInput(t *testing.T) {
	if _, err := NewExtractor("").FirstFrame(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	seek := slices.Contains(args, "-ss")
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "frame":
		fmt.Fprint(os.Stdout, "PNG:seek")
	case "short":
		if !seek {
			fmt.Fprint(os.Stdout, "PNG:start")
		}
	case "fail":
		fmt.Fprint(os.Stderr, "invalid data found when processing input")
		os.Exit(1)
	}
	os.Exit(0)
}
