// Package jslog is the structured-logging facade used across the module.
// It is a thin wrapper over github.com/joeycumines/logiface, backed by
// github.com/rs/zerolog through the github.com/joeycumines/izerolog
// adapter.
package jslog

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the facade type every internal package depends on. It exposes
// only the handful of level builders the module actually uses, keeping the
// generic logiface.Logger[*izerolog.Event] type out of call sites.
type Logger struct {
	inner *logiface.Logger[*izerolog.Event]
}

// Builder wraps a logiface.Builder so call sites chain field setters
// without naming the generic event type.
type Builder struct {
	inner *logiface.Builder[*izerolog.Event]
}

// New constructs a Logger writing structured JSON to w at the given
// minimum level name ("trace", "debug", "info", "warn" or "warning",
// "error", "disabled" or "off"; anything else defaults to info).
func New(w io.Writer, level string) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	opts := []logiface.Option[*izerolog.Event]{izerolog.WithZerolog(zl)}
	opts = append(opts, logiface.WithLevel[*izerolog.Event](parseLevel(level)))
	return Logger{inner: logiface.New(opts...)}
}

// Default constructs a Logger writing human-readable console output to
// stderr at info level, suitable for interactive embedder use.
func Default() Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr}
	zl := zerolog.New(cw).With().Timestamp().Logger()
	return Logger{inner: logiface.New(izerolog.WithZerolog(zl), logiface.WithLevel[*izerolog.Event](logiface.LevelInformational))}
}

// Nop returns a Logger that discards everything, used as the zero-config
// default for components (like gc.Collector) constructed without an
// explicit logger option.
func Nop() Logger {
	zl := zerolog.New(io.Discard)
	return Logger{inner: logiface.New(izerolog.WithZerolog(zl), logiface.WithLevel[*izerolog.Event](logiface.LevelDisabled))}
}

func parseLevel(s string) logiface.Level {
	switch s {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "warn", "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	case "disabled", "off":
		return logiface.LevelDisabled
	default:
		return logiface.LevelInformational
	}
}

func wrap(b *logiface.Builder[*izerolog.Event]) Builder { return Builder{inner: b} }

// Debug starts a debug-level record.
func (l Logger) Debug() Builder { return wrap(l.inner.Debug()) }

// Info starts an informational-level record.
func (l Logger) Info() Builder { return wrap(l.inner.Info()) }

// Warn starts a warning-level record.
func (l Logger) Warn() Builder { return wrap(l.inner.Warning()) }

// Err starts an error-level record.
func (l Logger) Err() Builder { return wrap(l.inner.Err()) }

// Str attaches a string field.
func (b Builder) Str(key, val string) Builder { return wrap(b.inner.Str(key, val)) }

// Int attaches an int field.
func (b Builder) Int(key string, val int) Builder { return wrap(b.inner.Int(key, val)) }

// Uint64 attaches a uint64 field.
func (b Builder) Uint64(key string, val uint64) Builder { return wrap(b.inner.Uint64(key, val)) }

// Bool attaches a bool field.
func (b Builder) Bool(key string, val bool) Builder { return wrap(b.inner.Bool(key, val)) }

// Error attaches an error field under the conventional "err" key.
func (b Builder) Error(err error) Builder { return wrap(b.inner.Err(err)) }

// Interface attaches an arbitrary field via reflection/JSON fallback.
func (b Builder) Interface(key string, val any) Builder { return wrap(b.inner.Interface(key, val)) }


// Log terminates the builder chain, emitting msg if the level is enabled.
func (b Builder) Log(msg string) { b.inner.Log(msg) }

// Logf terminates the builder chain with a formatted message.
func (b Builder) Logf(format string, args ...any) { b.inner.Logf(format, args...) }
