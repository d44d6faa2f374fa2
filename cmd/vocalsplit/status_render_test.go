package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"vocalsplit/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("vocalsplit", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "vocalsplit:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("vocalsplit", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "Spleeter", Available: false},
		{Name: "FFmpeg", Available: true, Command: "ffmpeg"},
		{Name: "FFprobe", Available: false, Optional: true, Detail: "not found"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[ERROR] not available") {
		t.Fatalf("expected error detail first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: ffmpeg)") {
		t.Fatalf("expected ready detail, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN] not found") {
		t.Fatalf("expected optional warning, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "Missing:") || !strings.Contains(lines[3], "Spleeter") {
		t.Fatalf("expected missing summary, got %q", lines[3])
	}
}

func TestCountRowsFollowPipelineOrder(t *testing.T) {
	rows := countRows(map[string]int{
		"error":      1,
		"completed":  2,
		"uploaded":   0,
		"separating": 3,
	})
	var got []string
	for _, r := range rows {
		got = append(got, r[0]+"="+r[1])
	}
	if strings.Join(got, ",") != "separating=3,completed=2,error=1" {
		t.Fatalf("unexpected rows %v", got)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := truncate("Sóng Ümlaut", 5); got != "Sóng…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}
