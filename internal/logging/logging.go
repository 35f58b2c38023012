// Package logging constructs the single process-wide zerolog.Logger used by
// every pipeline component, pretty-printed in dev and JSON in production.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a base logger. pretty selects the console writer used in dev;
// production deployments set pretty=false for JSON output suitable for log
// shippers.
func New(pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	var out zerolog.Logger
	if pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		out = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return out
}

// Component returns a child logger tagged with the owning subsystem, so
// every line it emits can be filtered by component without re-deriving it
// at each call site.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
