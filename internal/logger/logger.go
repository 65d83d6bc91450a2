// Package logger builds the process-wide slog.Logger. Every line carries the
// service name so api and worker output can be told apart in a shared sink.
package logger

import (
	"log/slog"
	"os"
)

func New(env, service string) *slog.Logger {
	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(h).With("service", service)
}
