// Package logger configures the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/config"
)

// Setup applies level, format and output from config. When a log directory
// is set, entries go to stdout and to hourly rotated files.
func Setup(cfg config.LoggingConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if cfg.Dir == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	rl, err := newRotator(cfg.Dir, cfg.MaxAgeDays)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rl))
	return nil
}

func newRotator(dir string, maxAgeDays int) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return rotatelogs.New(
		filepath.Join(dir, "fand-%Y-%m-%d-%H.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "fand.log")),
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
	)
}
