// Package logger builds the slog loggers used across nonocoop.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"

	"nonocoop/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"

	componentKey = "component"
	sessionKey   = "session_id"
	playerKey    = "player"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// settings is the logging config after environment overrides.
type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

// ForPlayer tags every record from log with the local player id.
func ForPlayer(log *slog.Logger, playerID string) *slog.Logger {
	if playerID == "" {
		return log
	}
	return log.With(playerKey, playerID)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == formatJSON {
		return slog.New(newEntryHandler(writer, s.level, s.addSource)), nil
	}

	return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(s.level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		ReportCaller:    s.addSource,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

// resolveSettings applies NONOCOOP_LOG_FORMAT, NONOCOOP_LOG_LEVEL and
// NONOCOOP_LOG_ADD_SOURCE on top of cfg.
func resolveSettings(cfg config.LoggingConfig) (settings, error) {
	format := override("NONOCOOP_LOG_FORMAT", cfg.Format, formatText)
	if format != formatText && format != formatJSON {
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	levelName := override("NONOCOOP_LOG_LEVEL", cfg.Level, "info")
	level, ok := levels[levelName]
	if !ok {
		return settings{}, fmt.Errorf("unsupported log level %q", levelName)
	}

	addSource := cfg.AddSource
	if env := override("NONOCOOP_LOG_ADD_SOURCE", "", ""); env != "" {
		addSource = env == "1" || env == "true" || env == "yes" || env == "on"
	}

	return settings{format: format, level: level, addSource: addSource}, nil
}

// override returns the lowercased env value, else configured, else fallback.
func override(env string, configured string, fallback string) string {
	for _, value := range []string{os.Getenv(env), configured} {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			return value
		}
	}
	return fallback
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
