package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/model"
)

// New builds the application logger from cfg. The terminal belongs to the
// UI, so output goes to cfg.File; an empty path falls back to stderr.
// The returned closer releases the log file.
func New(cfg model.LogConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: cfg.File != "",
		})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
	}
	logger.SetOutput(f)

	return logger, f, nil
}

// Discard returns a logger that drops everything. Components use it when
// no logger is supplied.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
