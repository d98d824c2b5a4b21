package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "WARN", "json")

	logger.Info("dropped")
	logger.Warn("kept", "bus", 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["bus"] != float64(1) {
		t.Errorf("record %v", rec)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "DEBUG", "text").Debug("hello", "pin", 16)
	if !strings.Contains(buf.String(), "msg=hello pin=16") {
		t.Errorf("text output %q", buf.String())
	}
}

func TestInitFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "spi-host.log")
	logger, err := Init("INFO", "text", logFile)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("to file")
	slog.Info("via default")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"to file", "via default"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q: %s", want, data)
		}
	}

	if err := Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestInitBadPath(t *testing.T) {
	_, err := Init("INFO", "text", filepath.Join(t.TempDir(), "missing", "x.log"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
