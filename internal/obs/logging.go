// Package obs contains observability utilities such as logging and metrics.
package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global structured logger used by the service.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// InitLogger initializes the global Logger. Production writes JSON at info
// level; any other environment gets a console writer at debug level.
func InitLogger(env string) {
	InitLoggerTo(env, os.Stdout)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(env string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if env == "production" {
		Logger = zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
		return
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	Logger = zerolog.New(cw).Level(zerolog.DebugLevel).With().Timestamp().Caller().Logger()
}
