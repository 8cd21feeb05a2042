package logging

import (
	"io"
	"log/slog"

	"hermannm.dev/devlog"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/config"
)

// New builds the application logger: JSON lines by default, colored
// human-readable output for local development.
func New(w io.Writer, format config.LogFormat, level slog.Level) *slog.Logger {
	if format == config.LogFormatDev {
		return slog.New(devlog.NewHandler(w, &devlog.Options{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
