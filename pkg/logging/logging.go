package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stderr. format is "text", "json" or "tint";
// an empty level means info.
func New(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "tint":
		logger.SetFormatter(&TintFormatter{TimeFormat: time.RFC3339})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return logger, nil
}

// Default returns an info level text logger.
func Default() *logrus.Logger {
	logger, _ := New("info", "text")
	return logger
}

// Or returns logger, or Default when logger is nil.
func Or(logger *logrus.Logger) *logrus.Logger {
	if logger == nil {
		return Default()
	}
	return logger
}
