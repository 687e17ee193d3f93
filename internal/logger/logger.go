// Package logger owns the process-wide zerolog instance and the
// component-scoped child loggers the admission core logs through.
//
// Initialize runs once at startup; everything else hands out a child of
// the root logger tagged with the subsystem it belongs to, so any log line
// can be traced back to the pipeline stage that produced it.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the root logger. It stays zero-valued (and silent) until
// Initialize runs, which lets package-level tests log without setup.
var Log zerolog.Logger

// Initialize configures the root logger: an unparseable level falls back
// to info, and pretty switches between console output for development and
// JSON for production.
func Initialize(level string, pretty bool) {
	lv, err := zerolog.ParseLevel(level)
	if err != nil {
		lv = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lv)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "admission-core").
		Logger()

	Log.Info().
		Str("level", lv.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the root logger.
func GetLogger() *zerolog.Logger {
	return &Log
}

// component tags a child logger with the subsystem it logs for.
func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Security logs authentication and authorization outcomes.
func Security() *zerolog.Logger { return component("security") }

// Database logs control-plane connection and migration events.
func Database() *zerolog.Logger { return component("database") }

// HTTP logs per-request access lines.
func HTTP() *zerolog.Logger { return component("http") }

// Admission logs the admission middleware's per-request summary.
func Admission() *zerolog.Logger { return component("admission") }

// Tenant logs tenant-cache invalidation events.
func Tenant() *zerolog.Logger { return component("tenant") }

// Authz logs the denial events emitted by the audit sink.
func Authz() *zerolog.Logger { return component("authz") }

// JWKS logs key-set fetch and refresh events.
func JWKS() *zerolog.Logger { return component("jwks") }
