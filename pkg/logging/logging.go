package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the capability pkg/session logs through. kv
// is a flat list of alternating key/value pairs, mirroring zerolog's
// own event-builder shape without exposing it.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)

	// With returns a child Logger that includes kv on every subsequent
	// call, the way zerolog.Context accumulates fields.
	With(kv ...any) Logger
}

// Level is a logging threshold.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls a zerologLogger's verbosity and destination.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds the default Logger, a thin wrapper over zerolog.Logger.
func New(cfg Config) Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if cfg.JSONOutput {
		zl = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).Level(level).With().Timestamp().Logger()
	}
	return zerologLogger{zl: zl}
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l zerologLogger) Debug(msg string, kv ...any) { event(l.zl.Debug(), msg, kv) }
func (l zerologLogger) Info(msg string, kv ...any)  { event(l.zl.Info(), msg, kv) }
func (l zerologLogger) Warn(msg string, kv ...any)  { event(l.zl.Warn(), msg, kv) }
func (l zerologLogger) Error(msg string, kv ...any) { event(l.zl.Error(), msg, kv) }

func (l zerologLogger) With(kv ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		ctx = fieldOn(ctx, key, kv[i+1])
	}
	return zerologLogger{zl: ctx.Logger()}
}

func event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if err, ok := kv[i+1].(error); ok {
			e = e.Err(err)
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func fieldOn(ctx zerolog.Context, key string, value any) zerolog.Context {
	if err, ok := value.(error); ok {
		return ctx.Str(key, err.Error())
	}
	return ctx.Interface(key, value)
}

// Nop is a Logger that discards everything, for tests and callers that
// don't want logging wired up.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
func (Nop) With(...any) Logger   { return Nop{} }
