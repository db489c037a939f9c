// Package applog provides the process-wide structured logger used by every
// subsystem of the firmware. Errors are never fatal: components log through
// here and keep running.
package applog

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var global *slog.Logger

// Init configures the global logger for the given level (debug, info, warn, error).
func Init(level string) error {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info", "":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	global = slog.New(handler)
	slog.SetDefault(global)
	return nil
}

// Get returns the global logger, falling back to slog.Default() before Init.
func Get() *slog.Logger {
	if global == nil {
		return slog.Default()
	}
	return global
}

// printer formats large counters (bytes received, tick counts) with digit
// grouping so operator-facing log lines stay readable.
var printer = message.NewPrinter(language.English)

// Count renders an integer counter with digit grouping, e.g. for
// bytes_received or tick_count fields attached to a log record.
func Count(n int64) string {
	return printer.Sprintf("%d", n)
}
