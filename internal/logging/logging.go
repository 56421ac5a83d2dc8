// Package logging builds the zap logger used across modimui.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eachlabs/modimui/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger from cfg. Logs go to cfg.File when set
// and to stderr otherwise.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.Sampling = nil

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// ForTUI is like New but never writes to the terminal: without a configured
// file, logs go to modimui.log in the logs directory.
func ForTUI(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		cfg.File = filepath.Join(config.LogsDir(), "modimui.log")
	}
	return New(cfg)
}
