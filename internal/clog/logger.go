// Package clog provides the Conductor's structured logging, built on
// zerolog, with per-component sub-loggers so log lines can be filtered
// by which part of the Conductor emitted them.
package clog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// Log is the process-wide base logger. Initialize should be called
	// once at startup before any component logger is used.
	Log zerolog.Logger

	once sync.Once
)

// Initialize configures the global logger. level is a zerolog level
// string ("debug", "info", "warn", "error"); pretty switches to a
// human-readable console writer instead of JSON, intended for local
// development only.
func Initialize(level string, pretty bool) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)

		var w = os.Stderr
		if pretty {
			cw := zerolog.ConsoleWriter{Out: os.Stderr}
			Log = zerolog.New(cw).With().Timestamp().Logger()
			return
		}
		Log = zerolog.New(w).With().Timestamp().Logger()
	})
}

// GetLogger returns the process-wide base logger, initializing a sane
// default (info level, JSON) if Initialize was never called.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		Log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
	return Log
}

func component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// Resource returns the Resource Monitor's sub-logger.
func Resource() zerolog.Logger { return component("resource_monitor") }

// Scaler returns the Predictive Scaler's sub-logger.
func Scaler() zerolog.Logger { return component("scaler") }

// Plugin returns the Plugin Manager's sub-logger.
func Plugin() zerolog.Logger { return component("plugin_manager") }

// Isolation returns the Isolated Plugin Runner's sub-logger.
func Isolation() zerolog.Logger { return component("isolation") }

// Router returns the Request Router's sub-logger.
func Router() zerolog.Logger { return component("router") }

// Autonomy returns the Autonomy Coordinator's sub-logger.
func Autonomy() zerolog.Logger { return component("autonomy") }

// Refusal returns the Refusal Screener's sub-logger.
func Refusal() zerolog.Logger { return component("refusal") }

// Metrics returns the Metrics Registry's sub-logger.
func Metrics() zerolog.Logger { return component("metrics") }
