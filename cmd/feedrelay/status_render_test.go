package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"

	"feedrelay/internal/deps"
	"feedrelay/internal/ipc"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	plain := renderStatusLine("Daemon", statusOK, "Running", false)
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if want := (text.Colors{text.FgGreen}).Sprint(plain); got != want {
		t.Fatalf("colored line mismatch\n got: %q\nwant: %q", got, want)
	}
	if !strings.Contains(got, "[OK] Running") {
		t.Fatalf("colored line lost its text: %q", got)
	}
}

func TestTransferAndActionKinds(t *testing.T) {
	transfers := map[string]statusKind{
		"downloading": statusInfo,
		"uploading":   statusInfo,
		"paused":      statusWarn,
		"cancelled":   statusWarn,
		"failed":      statusError,
		"done":        statusOK,
	}
	for value, want := range transfers {
		if got := transferKind(value); got != want {
			t.Fatalf("transferKind(%q) = %d, want %d", value, got, want)
		}
	}
	actions := map[string]statusKind{
		"unused":    statusOK,
		"done":      statusInfo,
		"cancelled": statusWarn,
	}
	for value, want := range actions {
		if got := actionStateKind(value); got != want {
			t.Fatalf("actionStateKind(%q) = %d, want %d", value, got, want)
		}
	}
}

func TestStatusPrinterSections(t *testing.T) {
	var buf bytes.Buffer
	p := newStatusPrinter(&buf)
	if p.colorize {
		t.Fatalf("buffer output must not be colored")
	}
	p.section("Transfers")
	p.line("42.7", statusWarn, "paused")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, rule, and one line, got %q", lines)
	}
	if lines[0] != "▸ Transfers" || lines[1] != strings.Repeat("─", 11) {
		t.Fatalf("unexpected header %q / %q", lines[0], lines[1])
	}
	if !strings.Contains(lines[2], "[WARN] paused") {
		t.Fatalf("unexpected line %q", lines[2])
	}
}

func TestRenderTableTrimsLongCells(t *testing.T) {
	long := strings.Repeat("x", maxCellWidth*2)
	out := renderTable([]string{"Key", "Title"}, [][]string{{"42.7", long}, {"42.8"}}, nil)
	if strings.Contains(out, long) {
		t.Fatalf("long cell was not trimmed:\n%s", out)
	}
	if !strings.Contains(out, strings.Repeat("x", maxCellWidth)) || !strings.Contains(out, "42.8") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("expected empty output without headers")
	}
}

func TestDependencyLines(t *testing.T) {
	tests := []struct {
		name     string
		statuses []deps.Status
		summary  string
		lines    int
	}{
		{
			name:     "all available",
			statuses: []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Available: true}},
			summary:  "[OK] All dependencies available",
			lines:    2,
		},
		{
			name: "optional missing",
			statuses: []deps.Status{
				{Name: "FFmpeg", Command: "ffmpeg", Available: true},
				{Name: "FFprobe", Optional: true, Detail: "binary \"ffprobe\" not found"},
			},
			summary: "[WARN] Optional dependencies missing",
			lines:   4,
		},
		{
			name:     "required missing",
			statuses: []deps.Status{{Name: "FFmpeg"}},
			summary:  "[ERROR] Required dependencies missing",
			lines:    3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := dependencyLines(tt.statuses, false)
			if len(lines) != tt.lines {
				t.Fatalf("expected %d lines, got %d: %q", tt.lines, len(lines), lines)
			}
			if !strings.Contains(lines[0], tt.summary) {
				t.Fatalf("summary line %q missing %q", lines[0], tt.summary)
			}
		})
	}
}

func TestDaemonLinesNotRunning(t *testing.T) {
	lines := daemonLines(nil, false)
	if len(lines) != 1 || !strings.Contains(lines[0], "Not running") {
		t.Fatalf("unexpected lines %q", lines)
	}
	lines = daemonLines(&ipc.StatusResponse{Running: true, PID: 7, LastPollError: "getUpdates: timeout"}, false)
	if !strings.Contains(strings.Join(lines, "\n"), "[WARN] getUpdates: timeout") {
		t.Fatalf("expected poll error line, got %q", lines)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
