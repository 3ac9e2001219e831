package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"debug lowercase", "debug", slog.LevelDebug},
		{"debug uppercase", "DEBUG", slog.LevelDebug},
		{"info lowercase", "info", slog.LevelInfo},
		{"warn mixed", "Warn", slog.LevelWarn},
		{"error uppercase", "ERROR", slog.LevelError},
		{"empty string", "", slog.LevelInfo},
		{"invalid value", "invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetup_WritesJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "nested", "rig.log")
	cleanup, err := Setup(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	slog.Info("hello", "project", "demo")
	slog.Debug("filtered out")
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"project":"demo"`) {
		t.Errorf("log output missing fields: %s", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("debug message written at info level: %s", out)
	}
}

func TestSetupConsole(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupConsole(&buf, slog.LevelDebug)

	slog.Info("process started", "pid", 42)

	if !strings.Contains(buf.String(), "process started") {
		t.Errorf("console output = %q, want message", buf.String())
	}
}

func TestLogPanic(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupTest(&buf)

	var recovered any
	func() {
		defer LogPanic("test-goroutine", func(r any) { recovered = r })
		panic("boom")
	}()

	if recovered != "boom" {
		t.Errorf("recovered = %v, want boom", recovered)
	}
	if !strings.Contains(buf.String(), "test-goroutine") {
		t.Errorf("log output missing goroutine name: %s", buf.String())
	}
}
