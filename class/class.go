package class

import (
	"runtime"

	"code.hybscloud.com/atomix"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/value"
)

type classKey string

// ctorShim turns a native construct function into a constructor that sees
// new.target, which goja does not pass to native constructors.
var ctorShim = goja.MustCompile("class.js", `(function (construct) {
	return function () {
		construct(this, new.target !== undefined, ...arguments);
	};
})`, true)

// tag is the hidden payload linking a host object to its instance. Only
// the host object references it, so it becomes unreachable together with
// the object.
type tag struct {
	inst *Instance
}

// Stats reports instance counts for a class.
type Stats struct {
	Created   uint64
	Destroyed uint64
}

// Class is a class registered on one environment.
type Class struct {
	env   *engine.Env
	table *resource.Table
	log   *zap.Logger
	desc  Descriptor
	name  string
	index map[string]int
	// params maps constructor argument positions to field indexes.
	params []int

	ctor  *goja.Object
	proto *goja.Object
	sym   *goja.Symbol

	created   atomix.Uint64
	destroyed atomix.Uint64
}

// Register builds the host constructor for d. It must be called on the
// host thread; the constructor is returned by Class.Constructor and is
// usually placed in a module's exports.
func Register(env *engine.Env, d *Descriptor) (*Class, error) {
	if !env.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseClass, "Register")
	}
	index, params, err := d.validate()
	if err != nil {
		return nil, err
	}
	if _, dup := env.InstanceData(classKey(d.Name)); dup {
		return nil, errors.InvalidInput(errors.PhaseClass, "class "+d.Name+" is already registered")
	}

	c := &Class{
		env:    env,
		table:  env.Table(),
		log:    env.Log().Named("class").With(zap.String("class", d.Name)),
		desc:   *d,
		name:   d.Name,
		index:  index,
		params: params,
		sym:    goja.NewSymbol(d.Name),
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	env.SetInstanceData(classKey(d.Name), c)
	c.log.Debug("class registered",
		zap.Int("fields", len(d.Fields)),
		zap.Int("methods", len(d.Methods)),
		zap.Stringer("policy", d.Policy))
	return c, nil
}

// Lookup returns a class registered on env by name.
func Lookup(env *engine.Env, name string) (*Class, bool) {
	v, ok := env.InstanceData(classKey(name))
	if !ok {
		return nil, false
	}
	return v.(*Class), true
}

func (c *Class) build() error {
	rt := c.env.Runtime()
	shim, err := rt.RunProgram(ctorShim)
	if err != nil {
		return err
	}
	wrap, _ := goja.AssertFunction(shim)
	ctor, err := wrap(goja.Undefined(), rt.ToValue(c.construct))
	if err != nil {
		return err
	}
	c.ctor = ctor.ToObject(rt)
	c.proto = c.ctor.Get("prototype").ToObject(rt)

	if err := c.ctor.DefineDataProperty("name", rt.ToValue(c.name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}
	if err := c.ctor.DefineDataProperty("length", rt.ToValue(len(c.params)), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}

	for i, spec := range c.desc.Fields {
		getter := rt.ToValue(c.getter(i))
		setter := rt.ToValue(c.setter(i))
		if err := c.proto.DefineAccessorProperty(spec.Name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	for _, m := range c.desc.Methods {
		if err := c.proto.DefineDataProperty(m.Name, rt.ToValue(c.method(m)), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return err
		}
	}

	b := c.env.Bridge()
	for _, s := range c.desc.Statics {
		hv, err := b.ToHost(s.Value)
		if err != nil {
			return err
		}
		if err := c.ctor.DefineDataProperty(s.Name, hv, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Policy returns the construction policy.
func (c *Class) Policy() Policy { return c.desc.Policy }

// Constructor returns the host constructor function.
func (c *Class) Constructor() *goja.Object { return c.ctor }

// Stats returns instance counters.
func (c *Class) Stats() Stats {
	return Stats{Created: c.created.Load(), Destroyed: c.destroyed.Load()}
}

// construct receives this, whether new was used, then the constructor
// arguments.
func (c *Class) construct(call goja.FunctionCall) goja.Value {
	b := c.env.Bridge()
	if c.desc.Policy == FactoryOnly {
		b.Throw(errors.ConstructionForbidden(c.name))
	}
	this, ok := call.Argument(0).(*goja.Object)
	if !call.Argument(1).ToBoolean() || !ok {
		panic(c.env.Runtime().NewTypeError("Class constructor %s cannot be invoked without 'new'", c.name))
	}

	fields, err := c.decodeArgs(call.Arguments[2:])
	if err != nil {
		b.Throw(err)
	}
	inst, err := c.newInstance(fields)
	if err != nil {
		b.Throw(err)
	}
	c.attach(this, inst)
	return goja.Undefined()
}

func (c *Class) decodeArgs(args []goja.Value) ([]value.Value, error) {
	b := c.env.Bridge()
	fields := c.defaults()
	for pos, idx := range c.params {
		var arg goja.Value
		if pos < len(args) {
			arg = args[pos]
		}
		v, err := decodeField(b.ToNative, c.desc.Fields[idx], arg, []string{"args", errors.Index(pos)})
		if err != nil {
			return nil, err
		}
		fields[idx] = v
	}
	return fields, nil
}

// defaults returns the initial field values: the declared default of
// optional fields, Absent otherwise.
func (c *Class) defaults() []value.Value {
	fields := make([]value.Value, len(c.desc.Fields))
	for i, spec := range c.desc.Fields {
		if spec.Optional && spec.Default != nil {
			fields[i] = *spec.Default
		}
	}
	return fields
}

// New constructs an instance from native code. It is the only construction
// path of a FactoryOnly class. fields is an object value checked against
// the field specs; omitted optional fields take their defaults.
func (c *Class) New(fields value.Value) (*goja.Object, *Instance, error) {
	if !c.env.OnHostThread() {
		return nil, nil, errors.WrongThread(errors.PhaseClass, c.name+".New")
	}
	if fields.Kind() != value.KindObject && !fields.IsAbsent() {
		return nil, nil, errors.TypeMismatch(errors.PhaseClass, nil, "object", fields.Kind().String())
	}
	vals := c.defaults()
	for i, spec := range c.desc.Fields {
		v, ok := fields.Get(spec.Name)
		if !ok {
			if !spec.Optional {
				return nil, nil, errors.FieldMissing(errors.PhaseClass, []string{spec.Name}, spec.Name)
			}
			continue
		}
		if err := checkField(spec, v, []string{spec.Name}); err != nil {
			return nil, nil, err
		}
		vals[i] = v
	}

	inst, err := c.newInstance(vals)
	if err != nil {
		return nil, nil, err
	}
	obj := c.env.Runtime().CreateObject(c.proto)
	c.attach(obj, inst)
	return obj, inst, nil
}

func (c *Class) newInstance(fields []value.Value) (*Instance, error) {
	inst := &Instance{class: c, fields: fields}
	inst.state.Store(uint32(Constructed))
	h := c.table.Insert(resource.TypeInstance, inst)
	if h == 0 {
		return nil, errors.Closed(errors.PhaseClass, "environment")
	}
	inst.handle = h
	c.created.Add(1)

	if c.desc.Init != nil {
		if err := c.desc.Init(inst); err != nil {
			inst.destroy()
			return nil, err
		}
	}
	return inst, nil
}

func (c *Class) attach(obj *goja.Object, inst *Instance) {
	box := &tag{inst: inst}
	_ = obj.DefineDataPropertySymbol(c.sym, c.env.Runtime().ToValue(box), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	runtime.AddCleanup(box, (*Instance).collected, inst)
}

// Instance returns the instance behind a host object. Objects that were
// not constructed by this class fail with TypeMismatch.
func (c *Class) Instance(v goja.Value) (*Instance, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseClass, nil, c.name, "primitive")
	}
	t := obj.GetSymbol(c.sym)
	if t == nil || goja.IsUndefined(t) {
		return nil, errors.TypeMismatch(errors.PhaseClass, nil, c.name, obj.ClassName())
	}
	box, ok := t.Export().(*tag)
	if !ok || box.inst.class != c {
		return nil, errors.TypeMismatch(errors.PhaseClass, nil, c.name, obj.ClassName())
	}
	return box.inst, nil
}

// Destroy tears down the instance behind v without waiting for the host
// garbage collector. Later use of the object from script fails.
func (c *Class) Destroy(v goja.Value) error {
	inst, err := c.Instance(v)
	if err != nil {
		return err
	}
	inst.destroy()
	return nil
}

// receiver resolves this for accessors and methods, throwing on failure.
func (c *Class) receiver(this goja.Value) *Instance {
	inst, err := c.Instance(this)
	if err != nil {
		c.env.Bridge().Throw(err)
	}
	if inst.State() != Constructed {
		c.env.Bridge().Throw(errors.Released(errors.PhaseClass, c.name+" instance"))
	}
	return inst
}

func (c *Class) getter(idx int) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		inst := c.receiver(call.This)
		v := inst.fields[idx]
		if v.IsAbsent() {
			return goja.Undefined()
		}
		hv, err := c.env.Bridge().ToHost(v)
		if err != nil {
			c.env.Bridge().Throw(err)
		}
		return hv
	}
}

func (c *Class) setter(idx int) func(goja.FunctionCall) goja.Value {
	spec := c.desc.Fields[idx]
	return func(call goja.FunctionCall) goja.Value {
		b := c.env.Bridge()
		inst := c.receiver(call.This)
		v, err := decodeField(b.ToNative, spec, call.Argument(0), []string{spec.Name})
		if err != nil {
			b.Throw(err)
		}
		inst.fields[idx] = v
		return goja.Undefined()
	}
}

func (c *Class) method(m Method) func(goja.FunctionCall) goja.Value {
	var params []*value.Type
	var result *value.Type
	if m.Sig != nil {
		params, result = m.Sig.Params, m.Sig.Result
	}
	return func(call goja.FunctionCall) goja.Value {
		b := c.env.Bridge()
		inst := c.receiver(call.This)
		args, err := b.Args(call.Arguments, params)
		if err != nil {
			b.Throw(err)
		}
		if err := inst.enter(); err != nil {
			b.Throw(err)
		}
		res, err := func() (value.Value, error) {
			defer inst.leave()
			return m.Fn(inst, args)
		}()
		if err != nil {
			b.Throw(err)
		}
		if result == nil {
			return goja.Undefined()
		}
		hv, err := b.ToHostTyped(res, result)
		if err != nil {
			b.Throw(err)
		}
		return hv
	}
}

// decodeField converts one host value against a field spec. undefined
// takes the default of an optional field; null is kept for nullable ones.
func decodeField(toNative func(goja.Value, *value.Type) (value.Value, error), spec value.PropertySpec, v goja.Value, path []string) (value.Value, error) {
	switch {
	case v == nil || goja.IsUndefined(v):
		if !spec.Optional {
			return value.Value{}, errors.FieldMissing(errors.PhaseToNative, path, spec.Name)
		}
		if spec.Default != nil {
			return *spec.Default, nil
		}
		return value.Absent(), nil
	case goja.IsNull(v):
		if !spec.Nullable {
			return value.Value{}, errors.TypeMismatch(errors.PhaseToNative, path, spec.Type.String(), "null")
		}
		return value.Null(), nil
	}
	out, err := toNative(v, spec.Type)
	if e, ok := errors.As(err); ok {
		e.Path = append(append([]string(nil), path...), e.Path...)
	}
	return out, err
}
