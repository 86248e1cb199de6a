package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var defaultLogger *slog.Logger

// Init installs the process-wide logger. Development gets colored tint output,
// every other environment gets JSON.
func Init(env string, level ...string) {
	var handler slog.Handler

	lvl := slog.LevelDebug
	if env == "production" {
		lvl = slog.LevelInfo
	}
	if len(level) > 0 && level[0] != "" {
		lvl = ParseLevel(level[0])
	}

	if env == "development" || env == "" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}
