package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"
)

// ///////////////////////////////////////////////
// parseFlags Tests
// ///////////////////////////////////////////////

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCmd   string
		wantLines int
		wantErr   string
	}{
		{"status", []string{"status"}, "status", 50, ""},
		{"logs with count", []string{"logs", "-n", "5"}, "logs", 5, ""},
		{"flags first", []string{"--lines=7", "logs"}, "logs", 7, ""},
		{"missing command", nil, "", 0, "missing command"},
		{"two commands", []string{"status", "stop"}, "", 0, "unexpected argument: stop"},
		{"zero lines", []string{"logs", "-n", "0"}, "", 0, "--lines must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			opts, err := parseFlags(tt.args, &stderr)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			if opts.command != tt.wantCmd {
				t.Errorf("command = %q, want %q", opts.command, tt.wantCmd)
			}
			if opts.lines != tt.wantLines {
				t.Errorf("lines = %d, want %d", opts.lines, tt.wantLines)
			}
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"--help"}, &stderr)
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("err = %v, want pflag.ErrHelp", err)
	}
	if !strings.Contains(stderr.String(), "restart") {
		t.Errorf("usage does not list commands:\n%s", stderr.String())
	}
}

// ///////////////////////////////////////////////
// run Tests
// ///////////////////////////////////////////////

func TestRunLogs(t *testing.T) {
	dir := t.TempDir()
	dd := paths.DataDir{Root: dir}
	content := "first\nsecond\nthird\n"
	if err := os.WriteFile(dd.Log(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--data-dir", dir, "logs", "-n", "2"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := stdout.String(); got != "second\nthird\n" {
		t.Errorf("logs output = %q", got)
	}
}

func TestRunLogsMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--data-dir", t.TempDir(), "logs"}, &stdout, &stderr); err == nil {
		t.Fatal("expected error for missing log file")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--data-dir", t.TempDir(), "reload"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), `unknown command "reload"`) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunControlDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := "[control]\nenabled = false\n"
	if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	err := run([]string{"--data-dir", dir, "status"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("err = %v, want control disabled error", err)
	}
}

// ///////////////////////////////////////////////
// Output Tests
// ///////////////////////////////////////////////

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		st   supervisor.Status
		want []string
	}{
		{
			"running",
			supervisor.Status{
				Running:        true,
				Generation:     supervisor.Generation{Number: 4, ID: "abc"},
				StartedAt:      now.Add(-90 * time.Second),
				Signals:        "running",
				WorkerState:    "sleeping",
				FailedAttempts: 3,
				Restarts:       3,
			},
			[]string{"tgbot pid 77", "generation:      4 (abc)", "(up 1m30s)", "worker:          sleeping", "failed attempts: 3"},
		},
		{
			"between generations",
			supervisor.Status{Restarts: 1},
			[]string{"between generations", "restarts:        1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printStatus(&buf, 77, tt.st, now)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	st := supervisor.Status{Running: true, Generation: supervisor.Generation{Number: 2, ID: "x"}, FailedAttempts: 1}
	if err := printJSON(&buf, 9, st); err != nil {
		t.Fatalf("printJSON: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["pid"] != float64(9) || got["failed_attempts"] != float64(1) || got["running"] != true {
		t.Errorf("unexpected JSON: %v", got)
	}
	if gen, ok := got["generation"].(map[string]any); !ok || gen["number"] != float64(2) {
		t.Errorf("generation = %v", got["generation"])
	}
}
