package udpm

import "log/slog"

// Logger is the logging interface this package depends on, designed to
// be satisfied by *slog.Logger without an adapter. Applications may plug
// in their own implementation via WithLogger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func defaultLogger() Logger {
	return slog.Default()
}
