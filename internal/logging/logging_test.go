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
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(newLogger(&buf, "info", "json"), "session")
	logger.Info("upload started", "frames", 3)
	logger.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["component"] != "session" {
		t.Errorf("component = %v, want session", rec["component"])
	}
	if rec["msg"] != "upload started" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "console").Info("ready", "port", 8790)

	out := buf.String()
	if !strings.Contains(out, "ready") || !strings.Contains(out, "8790") {
		t.Errorf("console output missing fields: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console output should not be JSON: %q", out)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdef0123456789"); got != "abcd...6789" {
		t.Errorf("SanitizeToken() = %q", got)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	p := filepath.Join(home, "videos", "clip.mp4")
	got := SanitizePath(p)
	if !strings.HasPrefix(got, "~") {
		t.Errorf("SanitizePath(%q) = %q, want ~ prefix", p, got)
	}
	if got := SanitizePath("/opt/clip.mp4"); got != "/opt/clip.mp4" && !strings.HasPrefix(home, "/opt") {
		t.Errorf("SanitizePath(/opt/clip.mp4) = %q", got)
	}
}
