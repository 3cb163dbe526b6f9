package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		stderr string
	}{
		{name: "success", err: nil, code: 0},
		{name: "interrupted", err: fmt.Errorf("deliver: %w", context.Canceled), code: 130},
		{name: "failure", err: errors.New("connect to daemon: refused"), code: 1, stderr: "feedrelay: connect to daemon: refused\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := exitCode(&stderr, tt.err); got != tt.code {
				t.Fatalf("exitCode = %d, want %d", got, tt.code)
			}
			if stderr.String() != tt.stderr {
				t.Fatalf("stderr = %q, want %q", stderr.String(), tt.stderr)
			}
		})
	}
}

func TestWriteJSONPrintsEmptyListForNil(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	var records []string
	if err := writeJSON(cmd, records); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Fatalf("expected [], got %q", out.String())
	}

	out.Reset()
	if err := writeJSON(cmd, map[string]int{"records": 2}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if out.String() != "{\n  \"records\": 2\n}\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
