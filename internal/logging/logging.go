package logging

import (
	"io"
	log "log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(name string) log.Level {
	if level, ok := logLevelMap[strings.ToLower(name)]; ok {
		return level
	}
	return log.LevelInfo
}

// Setup installs a tint handler writing to w as the default logger.
func Setup(w io.Writer, level string) *log.Logger {
	logger := log.New(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.TimeOnly,
	}))
	log.SetDefault(logger)
	return logger
}
