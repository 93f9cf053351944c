// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global logger. DEV gets human-readable console output
// at debug level; every other environment gets JSON at info level. Output
// always goes to stderr so stdout stays free for the stdio transport.
func Configure(env string) {
	Setup(env, os.Stderr)
}

func Setup(env string, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if env == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
