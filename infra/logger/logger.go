package logger

import corelogger "github.com/kilianp07/busalloc/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger mirrors the core no-op logger.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. Output format depends on the
// APP_ENV variable and the level on the last call to SetLevel.
func New(component string) Logger {
	return NewZerologLogger(component)
}
