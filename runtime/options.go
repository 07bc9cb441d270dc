package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/config"
	"github.com/wippyai/js-runtime/transcoder"
)

// Option configures a Runtime.
type Option func(*options)

type options struct {
	config   *config.Config
	logger   *zap.Logger
	compiler *transcoder.Compiler
	console  bool
}

// WithConfig sets the runtime configuration. Unless WithLogger is also
// given, the logger is built from cfg.Log.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCompiler shares a type compiler between runtimes.
func WithCompiler(c *transcoder.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithoutConsole leaves the script global console undefined.
func WithoutConsole() Option {
	return func(o *options) {
		o.console = false
	}
}
