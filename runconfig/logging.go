//go:build linux

package runconfig

import (
	"fmt"
	"log/slog"

	"github.com/go-sandbox/microrun/logger"
)

// parseLogLevel parses the --log-level flag.
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelError, fmt.Errorf("runconfig: unknown log level: %q", s)
	}
}

// parseLogFormat parses the --log-format flag.
func parseLogFormat(s string) (logger.LogFormat, error) {
	switch s {
	case "text":
		return logger.LogText, nil
	case "json":
		return logger.LogJSON, nil
	default:
		return logger.LogText, fmt.Errorf("runconfig: unknown log format: %q", s)
	}
}
