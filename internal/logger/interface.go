package logger

import "codeberg.org/mutker/iceman/internal/errors"

// Logger defines the interface for logging operations.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	With(component string) Logger
}
