package engine

import (
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/transcoder"
)

// Option configures an Env.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	registry *require.Registry
	policy   transcoder.NumericPolicy
	console  bool
}

func defaultOptions() options {
	return options{
		logger:  Logger(),
		console: true,
	}
}

// WithLogger sets the environment logger. Host console output is routed
// to a "console" sub-logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry enables require() on the runtime using r.
func WithRegistry(r *require.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithNumericPolicy sets how host numbers convert to 32-bit integers.
func WithNumericPolicy(p transcoder.NumericPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithoutConsole leaves the host global console undefined.
func WithoutConsole() Option {
	return func(o *options) {
		o.console = false
	}
}
