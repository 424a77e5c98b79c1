// Custom logging utility used internally all over Hearth.

package log

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Key under which the request ID is stored in a request's context.
const RequestIDKey = "ReqID"

func init() {
	// setting configurations for logger
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Logger acts as a wrapper for zerolog with custom features.
type Logger interface {
	// WithCtx returns a sub-logger based of root logger with added context.
	WithCtx(context.Context) Logger
	// Info level log starts a log message with INFO level.
	Info() *zerolog.Event
	// Debug level log starts a log message with DEBUG level.
	Debug() *zerolog.Event
	// Warn level log starts a log message with WARNING level.
	Warn() *zerolog.Event
	// Error level log starts a log message with ERROR level.
	Error() *zerolog.Event
	// Fatal level log starts a log message with FATAL level.
	Fatal() *zerolog.Event
}

type logger struct {
	zerolog.Logger
}

// Creates a new logger instance for other packages to use the internal zerolog.
// env decides the output format, level is parsed by zerolog and falls back to info.
func New(version, env, level string) Logger {
	var output io.Writer
	if env == "DEV" {
		// Set output of Logger to prettified ConsoleOutput for local environment
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	} else {
		// ConsoleWriter prettifies log, inefficient in prod
		output = os.Stdout
	}
	return NewWithWriter(output, version, level)
}

// NewWithWriter builds a logger writing to w, mostly useful in tests.
func NewWithWriter(w io.Writer, version, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &logger{zerolog.New(w).Level(lvl).With().Str("Version", version).Timestamp().Caller().Stack().Logger()}
}

// Nop returns a logger which discards everything.
func Nop() Logger {
	return &logger{zerolog.Nop()}
}

// Returns a sub-logger by adding additional requestID context to it.
// Helps in debugging issues.
func (l *logger) WithCtx(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	requestID, _ := ctx.Value(RequestIDKey).(string)
	if requestID != "" {
		return &logger{l.With().Str(RequestIDKey, requestID).Logger()}
	}
	return l
}
