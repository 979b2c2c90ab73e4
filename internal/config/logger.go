package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global zerolog logger, grounded on the
// teacher's config.InitLogger (JSON in production, console-pretty when
// format is "console", RFC3339Nano timestamps).
func InitLogger(level, format string) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339, NoColor: false}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()

	log.Info().Str("level", logLevel.String()).Str("format", format).Msg("logger initialized")
}

// NewLogger creates a child logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewCorrelatedLogger creates a child logger tagged with both a component
// name and a request correlation ID, so every log line for one calculation
// can be grepped together.
func NewCorrelatedLogger(component, correlationID string) zerolog.Logger {
	return log.With().Str("component", component).Str("correlation_id", correlationID).Logger()
}
