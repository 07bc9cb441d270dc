package class

import (
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/value"
)

// State is an instance's position in its lifecycle.
type State uint32

const (
	Unconstructed State = iota
	Constructed
	Destroyed
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Destroyed:
		return "destroyed"
	}
	return "unconstructed"
}

// Instance is the native side of a bound object. Fields are read and
// written on the host thread.
type Instance struct {
	class    *Class
	native   any
	fields   []value.Value
	handle   resource.Handle
	state    atomic.Uint32
	pending  atomic.Bool
	finalize sync.Once
}

// Class returns the class the instance belongs to.
func (i *Instance) Class() *Class { return i.class }

// Handle returns the handle-table entry owning the instance.
func (i *Instance) Handle() resource.Handle { return i.handle }

// State returns the lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

// Native returns the state set by Init or SetNative.
func (i *Instance) Native() any { return i.native }

// SetNative attaches native state. It is released by the Finalize hook.
func (i *Instance) SetNative(v any) { i.native = v }

// Get returns a field value; Absent if the field is unknown or unset.
func (i *Instance) Get(name string) value.Value {
	idx, ok := i.class.index[name]
	if !ok {
		return value.Absent()
	}
	return i.fields[idx]
}

// Set replaces a field value after checking it against the field spec.
func (i *Instance) Set(name string, v value.Value) error {
	if i.State() == Destroyed {
		return errors.Released(errors.PhaseClass, i.class.name+" instance")
	}
	idx, ok := i.class.index[name]
	if !ok {
		return errors.NotFound(errors.PhaseClass, i.class.name+" field", name)
	}
	spec := i.class.desc.Fields[idx]
	if err := checkField(spec, v, []string{name}); err != nil {
		return err
	}
	i.fields[idx] = v
	return nil
}

// Fields returns the present fields as an object value.
func (i *Instance) Fields() value.Value {
	out := make([]value.Field, 0, len(i.fields))
	for idx, spec := range i.class.desc.Fields {
		if v := i.fields[idx]; !v.IsAbsent() {
			out = append(out, value.F(spec.Name, v))
		}
	}
	return value.Object(out...)
}

// Drop runs the Finalize hook once. The handle table calls it when the
// instance's entry is removed.
func (i *Instance) Drop() {
	i.state.Store(uint32(Destroyed))
	i.finalize.Do(func() {
		if fin := i.class.desc.Finalize; fin != nil {
			fin(i)
		}
		i.native = nil
		i.class.destroyed.Add(1)
	})
}

// destroy removes the instance from the handle table. An instance in the
// middle of a method call is removed when the call returns.
func (i *Instance) destroy() {
	if !i.state.CompareAndSwap(uint32(Constructed), uint32(Destroyed)) {
		return
	}
	if _, ok := i.class.table.Remove(i.handle); !ok {
		i.pending.Store(true)
	}
}

// collected runs on the runtime's cleanup goroutine once the host object
// is unreachable. Teardown is moved to the host thread; if the environment
// is already closed, closing the handle table has dropped the instance.
func (i *Instance) collected() {
	env := i.class.env
	if err := env.Post(func(*goja.Runtime) { i.destroy() }); err != nil {
		i.class.log.Debug("instance collected after close", zap.Uint32("handle", uint32(i.handle)))
	}
}

// enter pins the instance for the duration of a call.
func (i *Instance) enter() error {
	if i.State() != Constructed || !i.class.table.Borrow(i.handle) {
		return errors.Released(errors.PhaseClass, i.class.name+" instance")
	}
	return nil
}

func (i *Instance) leave() {
	i.class.table.ReturnBorrow(i.handle)
	if i.pending.CompareAndSwap(true, false) {
		i.class.table.Remove(i.handle)
	}
}

func checkField(spec value.PropertySpec, v value.Value, path []string) error {
	switch {
	case v.IsAbsent():
		if !spec.Optional {
			return errors.FieldMissing(errors.PhaseClass, path, spec.Name)
		}
		return nil
	case v.IsNull():
		if !spec.Nullable {
			return errors.TypeMismatch(errors.PhaseClass, path, spec.Type.String(), "null")
		}
		return nil
	}
	return value.Check(spec.Type, v)
}
