package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eachlabs/modimui/internal/config"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	logger, err := New(config.LoggingConfig{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn line missing")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestForTUI_DefaultsToLogsDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MODIMUI_STATE_DIR", dir)

	logger, err := ForTUI(config.LoggingConfig{Level: "info"})
	if err != nil {
		t.Fatalf("ForTUI error: %v", err)
	}
	logger.Info("tui started")
	logger.Sync()

	if _, err := os.Stat(filepath.Join(dir, "logs", "modimui.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
