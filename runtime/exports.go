package runtime

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/async"
	"github.com/wippyai/js-runtime/buffer"
	"github.com/wippyai/js-runtime/channel"
	"github.com/wippyai/js-runtime/class"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/value"
)

// Mode selects where an exported function body runs.
type Mode uint8

const (
	// Sync runs the body on the host thread and returns its result.
	Sync Mode = iota
	// Await runs the body on a worker and returns a promise.
	Await
	// Background runs the body on a worker and returns undefined.
	Background
)

func (m Mode) String() string {
	switch m {
	case Await:
		return "await"
	case Background:
		return "background"
	}
	return "sync"
}

// Handler is the native body of an exported function.
type Handler func(c *Call) (value.Value, error)

// FuncDescriptor declares an exported function.
type FuncDescriptor struct {
	// Sig is checked against every call. A nil Sig takes no arguments
	// and returns undefined.
	Sig  *value.Signature
	Fn   Handler
	Name string
	Mode Mode
	// Nullable lets a Sync function return null in place of its result.
	Nullable bool
}

// Exports is the export table of a module under construction. It is only
// valid inside the InitFunc that received it.
type Exports struct {
	runtime *Runtime
	obj     *goja.Object
	info    *ModuleInfo
	names   map[string]bool
	module  string
}

// Module returns the module name.
func (e *Exports) Module() string { return e.module }

// Runtime returns the runtime loading the module.
func (e *Exports) Runtime() *Runtime { return e.runtime }

// Env returns the host environment.
func (e *Exports) Env() *engine.Env { return e.runtime.env }

// Func exports a native function.
func (e *Exports) Func(d FuncDescriptor) error {
	if d.Fn == nil {
		return errors.InvalidInput(errors.PhaseHost, "function body cannot be nil")
	}
	if d.Nullable && d.Mode != Sync {
		return errors.Registration(errors.PhaseHost, e.module, d.Name,
			errors.Unsupported(errors.PhaseHost, "nullable result on "+d.Mode.String()+" function"))
	}
	if err := e.claim(d.Name); err != nil {
		return err
	}
	fn := e.runtime.Env().Runtime().ToValue(e.runtime.boundary(e.module, d))
	if err := e.define(d.Name, fn); err != nil {
		return err
	}
	e.info.Exports = append(e.info.Exports, Export{
		Name:     d.Name,
		Kind:     ExportFunc,
		Sig:      d.Sig,
		Mode:     d.Mode,
		Nullable: d.Nullable,
	})
	return nil
}

// Value exports a constant. v is checked against t.
func (e *Exports) Value(name string, t *value.Type, v value.Value) error {
	if err := e.claim(name); err != nil {
		return err
	}
	hv, err := e.runtime.env.Bridge().ToHostTyped(v, t)
	if err != nil {
		return errors.Registration(errors.PhaseHost, e.module, name, err)
	}
	if err := e.define(name, hv); err != nil {
		return err
	}
	e.info.Exports = append(e.info.Exports, Export{Name: name, Kind: ExportValue, Type: t})
	return nil
}

// Class registers a class and exports its constructor under the class name.
func (e *Exports) Class(d *class.Descriptor) (*class.Class, error) {
	if d == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "class descriptor cannot be nil")
	}
	if err := e.claim(d.Name); err != nil {
		return nil, err
	}
	c, err := class.Register(e.runtime.env, d)
	if err != nil {
		return nil, errors.Registration(errors.PhaseHost, e.module, d.Name, err)
	}
	if err := e.define(c.Name(), c.Constructor()); err != nil {
		return nil, err
	}
	e.info.Exports = append(e.info.Exports, Export{Name: c.Name(), Kind: ExportClass})
	return c, nil
}

func (e *Exports) claim(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "export name cannot be empty")
	}
	if e.names[name] {
		return errors.Registration(errors.PhaseHost, e.module, name,
			errors.InvalidInput(errors.PhaseHost, "duplicate export"))
	}
	e.names[name] = true
	return nil
}

func (e *Exports) define(name string, v goja.Value) error {
	if err := e.obj.DefineDataProperty(name, v, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return errors.Registration(errors.PhaseHost, e.module, name, err)
	}
	return nil
}

// Call carries one invocation of an exported function.
type Call struct {
	Args    []value.Value
	runtime *Runtime
	scope   *resource.Scope
	this    goja.Value
	log     *zap.Logger
}

// Arg returns the i-th argument, or Absent past the end.
func (c *Call) Arg(i int) value.Value {
	if i < 0 || i >= len(c.Args) {
		return value.Absent()
	}
	return c.Args[i]
}

// Runtime returns the runtime that owns the export.
func (c *Call) Runtime() *Runtime { return c.runtime }

// Env returns the host environment.
func (c *Call) Env() *engine.Env { return c.runtime.env }

// Log returns a logger naming the module and function.
func (c *Call) Log() *zap.Logger { return c.log }

// Scope returns the resource scope of a Sync call. Handles inserted into
// it are released when the call returns. Nil for Await and Background.
func (c *Call) Scope() *resource.Scope { return c.scope }

// This returns the receiver of a Sync call. Nil for Await and Background.
func (c *Call) This() goja.Value { return c.this }

// Channel opens a thread-safe channel to fn with the configured capacity
// and backpressure. Only valid in a Sync call.
func (c *Call) Channel(fn value.Function) (*channel.Func, error) {
	opts := c.runtime.config.ChannelOptions()
	opts.Logger = c.log.Named("channel")
	opts.Name = "callback"
	return channel.NewFunc(c.runtime.env, fn, opts)
}

// boundary turns d into a host function. Every argument is decoded
// before the body runs; failures are raised as host exceptions.
func (r *Runtime) boundary(module string, d FuncDescriptor) func(goja.FunctionCall) goja.Value {
	b := r.env.Bridge()
	log := r.logger.With(zap.String("module", module), zap.String("func", d.Name))

	var params []*value.Type
	var result *value.Type
	if d.Sig != nil {
		params, result = d.Sig.Params, d.Sig.Result
	}

	return func(fc goja.FunctionCall) goja.Value {
		args, err := b.Args(fc.Arguments, params)
		if err != nil {
			b.Throw(err)
		}

		switch d.Mode {
		case Await:
			p, err := r.scheduler.Promise(r.env, r.work(d, args, log), result)
			if err != nil {
				b.Throw(err)
			}
			return r.env.Runtime().ToValue(p)
		case Background:
			if _, err := r.scheduler.Submit(r.env, r.work(d, args, log)); err != nil {
				b.Throw(err)
			}
			return goja.Undefined()
		}

		res, err := r.invoke(d, &Call{Args: args, runtime: r, this: fc.This, log: log})
		if err != nil {
			log.Debug("native call failed", zap.Error(err))
			b.Throw(err)
		}
		hv, err := r.result(res, result, d.Nullable)
		if err != nil {
			b.Throw(err)
		}
		return hv
	}
}

// invoke runs a Sync body inside a resource scope. The scope is closed
// before the caller sees the error.
func (r *Runtime) invoke(d FuncDescriptor, c *Call) (res value.Value, err error) {
	scope := r.env.Table().NewScope()
	c.scope = scope
	defer scope.Close()
	defer func() {
		if p := recover(); p != nil {
			switch p.(type) {
			case goja.Value, *goja.InterruptedError:
				panic(p)
			}
			err = errors.NativeFailuref("%s panicked: %v", d.Name, p)
		}
	}()
	return d.Fn(c)
}

func (r *Runtime) work(d FuncDescriptor, args []value.Value, log *zap.Logger) async.Work {
	c := &Call{Args: args, runtime: r, log: log}
	return func() (value.Value, error) {
		return d.Fn(c)
	}
}

// result converts a Sync result. A returned buffer is handed to the host
// through the buffer bridge, so zero-copy mode aliases it.
func (r *Runtime) result(v value.Value, t *value.Type, nullable bool) (goja.Value, error) {
	switch {
	case t == nil:
		return goja.Undefined(), nil
	case nullable && (v.IsNull() || v.IsAbsent()):
		return goja.Null(), nil
	case t.Kind == value.KindBuffer && v.Kind() == value.KindBuffer:
		return r.buffers.Transfer(buffer.RegionOf(v.Bytes()))
	}
	return r.env.Bridge().ToHostTyped(v, t)
}
