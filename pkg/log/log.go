package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger. Packages derive child loggers from it
// via the With* helpers rather than importing zerolog directly.
var Logger zerolog.Logger

// Level names accepted by Config.Level.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      string
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global logger. Unknown level names fall back to
// info rather than failing startup.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// The With* helpers return a pointer so call sites can chain level
// methods directly on the result.

// WithComponent creates a child logger with a component field.
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithRequestID creates a child logger with a request_id field.
func WithRequestID(requestID string) *zerolog.Logger {
	l := Logger.With().Str("request_id", requestID).Logger()
	return &l
}

// WithService creates a child logger with a service field.
func WithService(service string) *zerolog.Logger {
	l := Logger.With().Str("service", service).Logger()
	return &l
}

// WithStreamID creates a child logger with a stream_id field.
func WithStreamID(streamID string) *zerolog.Logger {
	l := Logger.With().Str("stream_id", streamID).Logger()
	return &l
}

// WithTaskID creates a child logger with a task_id field.
func WithTaskID(taskID string) *zerolog.Logger {
	l := Logger.With().Str("task_id", taskID).Logger()
	return &l
}

// Helpers for one-off messages outside a component context.

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }
func Fatal(msg string) { Logger.Fatal().Msg(msg) }

// Errorf logs an error with a static message.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
