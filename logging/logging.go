// Package logging configures zerolog for logicflow binaries and
// provides component-scoped loggers for library use.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns a root logger writing console output to w at the level
// selected by verbosity (0 warn, 1 info, 2 debug, 3+ trace). A nil w
// defaults to stderr.
func Setup(verbosity int, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level zerolog.Level
	switch verbosity {
	case 0:
		level = zerolog.WarnLevel
	case 1:
		level = zerolog.InfoLevel
	case 2:
		level = zerolog.DebugLevel
	default:
		level = zerolog.TraceLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
	}

	logger := zerolog.New(console).Level(level).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Component returns a child logger tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Nop returns a disabled logger for library defaults.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
