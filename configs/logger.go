package configs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger настраивает slog и делает его логгером по умолчанию
func InitLogger(app AppConfig) *slog.Logger {
	logger := NewLogger(os.Stdout, app)
	slog.SetDefault(logger)

	logger.Info("Logger initialized successfully", "level", app.LogLevel, "env", app.Env)
	return logger
}

// NewLogger JSON логгер; вне продакшена с местом вызова и локальным временем
func NewLogger(w io.Writer, app AppConfig) *slog.Logger {
	var handler slog.Handler

	if app.Env == "production" {
		// Продакшен: JSON формат
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: parseLevel(app.LogLevel),
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       parseLevel(app.LogLevel),
			ReplaceAttr: replaceTimeAttr,
			AddSource:   true,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
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

func replaceTimeAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.String("time", a.Value.Time().Local().Format("2006-01-02 15:04:05"))
	}
	return a
}
