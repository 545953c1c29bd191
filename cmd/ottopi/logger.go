package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogLevel is the configured verbosity (logging.level).
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// LogFormat selects the slog handler (logging.format).
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var slogLevels = map[LogLevel]slog.Level{
	LogLevelError: slog.LevelError,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelDebug: slog.LevelDebug,
}

// parseLogLevel accepts the level names case-insensitively; "warning" is an
// alias for warn.
func parseLogLevel(level string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(level))
	if l == "warning" {
		l = LogLevelWarn
	}
	if _, ok := slogLevels[l]; !ok {
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
	return l, nil
}

func parseLogFormat(format string) (LogFormat, error) {
	switch f := LogFormat(strings.ToLower(format)); f {
	case "", LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be text or json)", format)
	}
}

// setupLogger builds the daemon logger. Every record carries app=ottopi so
// journald output from several daemons can be told apart.
func setupLogger(w io.Writer, level LogLevel, format LogFormat) *slog.Logger {
	lvl, ok := slogLevels[level]
	if !ok {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("app", "ottopi")
}

// componentLogger scopes a logger to one component (dispatcher, autopilot, ...).
// A nil logger falls back to slog.Default so constructors can be called from tests.
func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
