// Package obslog provides the package-level structured logger shared across
// every component of the alignment pipeline.
package obslog

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. Every package logs through this instance
// rather than constructing its own, so output stays consistently formatted
// and field-tagged regardless of which stage emits it.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Caller().Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}
