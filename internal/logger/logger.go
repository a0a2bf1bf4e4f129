package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	TraceLevel LogLevel = iota - 1
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ParseLevel maps a configured level name to a LogLevel. Matching is
// case-insensitive so LOG_LEVEL=DEBUG and log_level = "debug" agree.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, s)
	}
}

func (l LogLevel) String() string {
	return zerolog.Level(l).String()
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger based on the given configuration
func Init(level LogLevel, isService bool) {
	initWithWriter(os.Stdout, level, isService)
}

func initWithWriter(out io.Writer, level LogLevel, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	if isService {
		// journald stamps every line already
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	_, stdinErr := os.Stdin.Stat()
	return isService(os.Getenv, unix.Getppid(), stdinErr)
}

func isService(getenv func(string) string, ppid int, stdinErr error) bool {
	if stdinErr != nil {
		return true
	}
	if getenv("SERVICE_NAME") != "" || getenv("INVOCATION_ID") != "" {
		return true
	}

	return ppid == 1
}

// Trace logs a trace message
func Trace() *LogEvent {
	return &LogEvent{log.Trace()}
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

type zlogger struct {
	l zerolog.Logger
}

// Default returns a Logger backed by the process-wide logger configured by
// Init. Init must run before Default for the configured output to apply.
func Default() Logger {
	return &zlogger{l: log}
}

// New returns a Logger writing to the given zerolog.Logger.
func New(l zerolog.Logger) Logger {
	return &zlogger{l: l}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zlogger{l: zerolog.Nop()}
}

func (z *zlogger) Trace() *LogEvent { return &LogEvent{z.l.Trace()} }
func (z *zlogger) Debug() *LogEvent { return &LogEvent{z.l.Debug()} }
func (z *zlogger) Info() *LogEvent  { return &LogEvent{z.l.Info()} }
func (z *zlogger) Warn() *LogEvent  { return &LogEvent{z.l.Warn()} }
func (z *zlogger) Error() *LogEvent { return &LogEvent{z.l.Error()} }

func (z *zlogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(z.l.Error(), err)
}

func (z *zlogger) With(component string) Logger {
	return &zlogger{l: z.l.With().Str("component", component).Logger()}
}
