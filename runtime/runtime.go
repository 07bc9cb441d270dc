package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/async"
	"github.com/wippyai/js-runtime/buffer"
	"github.com/wippyai/js-runtime/config"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder"
	"github.com/wippyai/js-runtime/value"
)

// Runtime owns a host environment together with the native modules it can
// require, the async worker pool and the buffer bridge.
type Runtime struct {
	env       *engine.Env
	registry  *require.Registry
	scheduler *async.Scheduler
	buffers   *buffer.Bridge
	compiler  *transcoder.Compiler
	config    *config.Config
	logger    *zap.Logger

	mu      sync.RWMutex
	modules map[string]*module

	closeOnce sync.Once
	closeErr  error
}

// New creates a runtime and starts its host loop.
func New(opts ...Option) (*Runtime, error) {
	o := options{console: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if cfg == nil {
		cfg = config.Default()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		if o.config != nil {
			l, err := cfg.Log.Build()
			if err != nil {
				return nil, err
			}
			logger = l
		} else {
			logger = Logger()
		}
	}

	compiler := o.compiler
	if compiler == nil {
		compiler = transcoder.NewCompiler()
	}

	registry := require.NewRegistry()
	envOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRegistry(registry),
		engine.WithNumericPolicy(cfg.NumericPolicy()),
	}
	if !o.console {
		envOpts = append(envOpts, engine.WithoutConsole())
	}
	env := engine.New(envOpts...)

	r := &Runtime{
		env:      env,
		registry: registry,
		scheduler: async.NewScheduler(async.Options{
			Logger:     logger.Named("async"),
			Workers:    cfg.Workers,
			QueueDepth: cfg.QueueDepth,
		}),
		buffers:  buffer.New(env, cfg.BufferMode()),
		compiler: compiler,
		config:   cfg,
		logger:   logger,
		modules:  make(map[string]*module),
	}
	logger.Debug("runtime created",
		zap.Stringer("numeric", cfg.NumericPolicy()),
		zap.Stringer("buffers", cfg.BufferMode()),
		zap.Int("workers", r.scheduler.Stats().Workers))
	return r, nil
}

// Env returns the host environment.
func (r *Runtime) Env() *engine.Env { return r.env }

// Scheduler returns the async worker pool.
func (r *Runtime) Scheduler() *async.Scheduler { return r.scheduler }

// Buffers returns the buffer bridge.
func (r *Runtime) Buffers() *buffer.Bridge { return r.buffers }

// Compiler returns the Go type compiler used by reflective exports.
func (r *Runtime) Compiler() *transcoder.Compiler { return r.compiler }

// Config returns the effective configuration.
func (r *Runtime) Config() *config.Config { return r.config }

// Log returns the runtime logger.
func (r *Runtime) Log() *zap.Logger { return r.logger }

// RegisterInit registers a native module whose exports are built by init
// the first time a script requires name.
func (r *Runtime) RegisterInit(name string, init InitFunc) error {
	if init == nil {
		return errors.InvalidInput(errors.PhaseHost, "init function cannot be nil")
	}
	return r.register(name, init)
}

// RegisterExports registers a native module built by reflecting over v.
// Must be called before a script requires name. Method names are converted
// from PascalCase to snake_case (GetObject -> get_object).
func (r *Runtime) RegisterExports(name string, v any) error {
	init, err := reflectExports(r.compiler, v)
	if err != nil {
		return errors.Registration(errors.PhaseHost, name, "*", err)
	}
	return r.register(name, init)
}

func (r *Runtime) register(name string, init InitFunc) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "module name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		return errors.Registration(errors.PhaseHost, name, "*",
			errors.InvalidInput(errors.PhaseHost, "module already registered"))
	}
	m := &module{name: name, init: init}
	r.modules[name] = m
	r.registry.RegisterNativeModule(name, r.loader(m))
	r.logger.Debug("module registered", zap.String("module", name))
	return nil
}

func (r *Runtime) lookup(name string) (*module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Modules returns the registered module names in sorted order.
func (r *Runtime) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe loads the module if needed and reports its exports.
func (r *Runtime) Describe(ctx context.Context, name string) (ModuleInfo, error) {
	var info ModuleInfo
	err := r.env.Do(ctx, func(rt *goja.Runtime) error {
		m, err := r.load(rt, name)
		if err != nil {
			return err
		}
		info = m.info.clone()
		return nil
	})
	return info, err
}

func (r *Runtime) load(rt *goja.Runtime, name string) (*module, error) {
	m, ok := r.lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "module", name)
	}
	if m.info == nil && m.err == nil {
		if ex := rt.Try(func() { require.Require(rt, name) }); ex != nil {
			return nil, transcoder.FromException(ex)
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m, nil
}

// Call invokes an exported function of a module and waits for its result.
// A promise result is awaited.
func (r *Runtime) Call(ctx context.Context, mod, fn string, args ...value.Value) (value.Value, error) {
	info, err := r.Describe(ctx, mod)
	if err != nil {
		return value.Value{}, err
	}
	exp, ok := info.Export(fn)
	if !ok || exp.Kind != ExportFunc {
		return value.Value{}, errors.NotFound(errors.PhaseCall, "function", mod+"."+fn)
	}
	var result *value.Type
	if exp.Sig != nil && exp.Mode != Background {
		result = exp.Sig.Result
	}

	invoke := func(rt *goja.Runtime) (goja.Value, error) {
		var f goja.Callable
		ex := rt.Try(func() {
			exports := require.Require(rt, mod).ToObject(rt)
			f, _ = goja.AssertFunction(exports.Get(fn))
		})
		if ex != nil {
			return nil, transcoder.FromException(ex)
		}
		if f == nil {
			return nil, errors.NotFound(errors.PhaseCall, "function", mod+"."+fn)
		}
		hargs, err := r.env.Bridge().Values(args)
		if err != nil {
			return nil, err
		}
		out, err := f(goja.Undefined(), hargs...)
		return out, transcoder.FromException(err)
	}

	if exp.Nullable && exp.Mode == Sync {
		var out value.Value
		err := r.env.Do(ctx, func(rt *goja.Runtime) error {
			hv, err := invoke(rt)
			if err != nil {
				return err
			}
			if goja.IsNull(hv) || goja.IsUndefined(hv) {
				out = value.Null()
				return nil
			}
			out, err = r.env.Bridge().ToNative(hv, result)
			return err
		})
		return out, err
	}
	return r.env.AwaitFunc(ctx, invoke, result)
}

// Run evaluates src and waits for every job it leaves behind.
func (r *Runtime) Run(ctx context.Context, name, src string) error {
	if _, err := r.env.Eval(ctx, name, src, nil); err != nil {
		return err
	}
	return r.env.Wait(ctx)
}

// Eval evaluates src and converts its completion value to t.
func (r *Runtime) Eval(ctx context.Context, name, src string, t *value.Type) (value.Value, error) {
	return r.env.Eval(ctx, name, src, t)
}

// Await evaluates src and, when it completes with a promise, waits for the
// promise to settle.
func (r *Runtime) Await(ctx context.Context, name, src string, t *value.Type) (value.Value, error) {
	return r.env.Await(ctx, name, src, t)
}

// Wait blocks until the host environment is idle.
func (r *Runtime) Wait(ctx context.Context) error {
	return r.env.Wait(ctx)
}

// Close drains the async worker pool, then closes the host environment.
// Cleanup hooks and class finalizers run during the environment close.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.scheduler.Close()
		r.closeErr = r.env.Close(ctx)
		r.logger.Debug("runtime closed")
	})
	return r.closeErr
}
