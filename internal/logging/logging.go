// Package logging builds the zap loggers every DataBlock component
// shares, following the construction the pack's coordinator/cmd
// entrypoint uses: a development-shaped config with development mode
// turned off, sugared for call-site ergonomics.
package logging

import "go.uber.org/zap"

// New builds a sugared logger from zap's development config, with
// development mode turned off, at the given level
// name ("debug", "info", "warn", "error"). An empty name defaults to
// "info".
func New(level string) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Development = false

	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err == nil {
			cfg.Level.SetLevel(lvl)
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, used by tests and
// by callers that construct a Producer/Consumer without caring about
// observability.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
