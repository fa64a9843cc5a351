package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration
type Config struct {
	Level   string // trace, debug, info, warn, error
	Format  string // json, pretty
	Service string
	Output  io.Writer // defaults to stdout
}

// Setup configures the process-wide logger. Unknown levels fall back to info.
func Setup(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	fields := zerolog.New(writerFor(cfg)).With().Timestamp()
	if cfg.Service != "" {
		fields = fields.Str("service", cfg.Service)
	}
	log.Logger = fields.Logger()
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func writerFor(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != "pretty" {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
}

// NewLogger returns a child of the global logger tagged with component.
// Call it at construction time, after Setup.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ComponentLogger is NewLogger plus the request id of the current request
func ComponentLogger(component, requestID string) zerolog.Logger {
	l := log.With().Str("component", component)
	if requestID != "" {
		l = l.Str("request_id", requestID)
	}
	return l.Logger()
}

// Mask keeps the first visible characters of a credential and hides the rest
func Mask(credential string, visible int) string {
	if visible < 0 {
		visible = 0
	}
	if len(credential) <= visible {
		return credential
	}
	return credential[:visible] + "…"
}
