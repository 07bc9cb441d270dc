package config

import (
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
)

// Log configures the runtime logger.
type Log struct {
	Level       string `yaml:"level" json:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Development bool   `yaml:"development" json:"development"`
}

// Build creates a zap logger: JSON output for production, console output
// with stack traces on warnings for development.
func (l Log) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log", "level").
			Cause(err).
			Build()
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}
