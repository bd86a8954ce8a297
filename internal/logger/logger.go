// Package logger provides the configured zerolog logger used by all
// binaries.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger tagged with the service name. The level
// defaults to info and can be overridden with NOTECORE_LOG_LEVEL.
func New(serviceName string) zerolog.Logger {
	level := zerolog.InfoLevel
	if s := os.Getenv("NOTECORE_LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stdout).Level(level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
