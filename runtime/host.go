package runtime

import (
	"reflect"
	"strings"

	"github.com/wippyai/js-runtime/class"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder"
	"github.com/wippyai/js-runtime/value"
)

// AsyncExports moves reflected methods off the host thread. Keys are
// export names (snake_case).
type AsyncExports interface {
	AsyncFunctions() map[string]Mode
}

var (
	callType       = reflect.TypeOf((*Call)(nil))
	functionType   = reflect.TypeOf((*value.Function)(nil)).Elem()
	descriptorType = reflect.TypeOf((*class.Descriptor)(nil))
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
)

type reflectFunc struct {
	fn       reflect.Value
	params   []*transcoder.Binding
	result   *transcoder.Binding
	withCall bool
	hasErr   bool
}

type reflectConst struct {
	field reflect.Value
	bind  *transcoder.Binding
	name  string
}

// reflectExports compiles every exported method and field of v up front,
// so a bad signature fails registration rather than require().
func reflectExports(c *transcoder.Compiler, v any) (InitFunc, error) {
	if v == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "exports cannot be nil")
	}

	modes := make(map[string]Mode)
	if ae, ok := v.(AsyncExports); ok {
		for name, mode := range ae.AsyncFunctions() {
			modes[name] = mode
		}
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	var funcs []FuncDescriptor
	bound := make(map[string]bool)
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "AsyncFunctions" {
			continue
		}
		name := transcoder.SnakeCase(method.Name)
		d, err := bindMethod(c, name, rv.Method(i), modes[name])
		if err != nil {
			return nil, errors.Registration(errors.PhaseHost, rt.String(), name, err)
		}
		funcs = append(funcs, d)
		bound[name] = true
	}
	for name := range modes {
		if !bound[name] {
			return nil, errors.NotFound(errors.PhaseHost, "async method", name)
		}
	}

	var consts []reflectConst
	var classes []*class.Descriptor
	if sv := reflect.Indirect(rv); sv.Kind() == reflect.Struct {
		st := sv.Type()
		for i := 0; i < st.NumField(); i++ {
			field := st.Field(i)
			if !field.IsExported() {
				continue
			}
			name, skip := exportName(field)
			if skip {
				continue
			}
			if field.Type == descriptorType {
				d, _ := sv.Field(i).Interface().(*class.Descriptor)
				if d == nil {
					return nil, errors.InvalidInput(errors.PhaseHost, "class field "+field.Name+" is nil")
				}
				classes = append(classes, d)
				continue
			}
			b, err := c.Bind(field.Type)
			if err != nil {
				return nil, errors.Registration(errors.PhaseHost, rt.String(), name, err)
			}
			consts = append(consts, reflectConst{field: sv.Field(i), bind: b, name: name})
		}
	}

	return func(e *Exports) error {
		for _, d := range funcs {
			if err := e.Func(d); err != nil {
				return err
			}
		}
		for _, k := range consts {
			nv, err := k.bind.FromGo(k.field)
			if err != nil {
				return errors.Registration(errors.PhaseHost, e.module, k.name, err)
			}
			if err := e.Value(k.name, k.bind.Type(), nv); err != nil {
				return err
			}
		}
		for _, d := range classes {
			if _, err := e.Class(d); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func exportName(field reflect.StructField) (name string, skip bool) {
	tag, _, _ := strings.Cut(field.Tag.Get("js"), ",")
	switch tag {
	case "-":
		return "", true
	case "":
		return transcoder.SnakeCase(field.Name), false
	}
	return tag, false
}

// bindMethod accepts func([*Call,] params...) with no result, a result, an
// error, or a result and an error. A value.Function parameter receives the
// host callback as is; other parameter types are inferred.
func bindMethod(c *transcoder.Compiler, name string, fn reflect.Value, mode Mode) (FuncDescriptor, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		return FuncDescriptor{}, errors.Unsupported(errors.PhaseHost, "variadic method "+ft.String())
	}

	rf := &reflectFunc{fn: fn}
	start := 0
	if ft.NumIn() > 0 && ft.In(0) == callType {
		rf.withCall = true
		start = 1
	}

	sig := &value.Signature{}
	for i := start; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		var b *transcoder.Binding
		var err error
		if pt == functionType {
			b, err = c.Compile(&value.Type{Kind: value.KindFunction}, pt)
		} else {
			b, err = c.Bind(pt)
		}
		if err != nil {
			return FuncDescriptor{}, err
		}
		rf.params = append(rf.params, b)
		sig.Params = append(sig.Params, b.Type())
	}

	var res reflect.Type
	switch {
	case ft.NumOut() == 0:
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
		rf.hasErr = true
	case ft.NumOut() == 1:
		res = ft.Out(0)
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		res = ft.Out(0)
		rf.hasErr = true
	default:
		return FuncDescriptor{}, errors.Unsupported(errors.PhaseHost, "method results "+ft.String())
	}
	if res != nil {
		b, err := c.Bind(res)
		if err != nil {
			return FuncDescriptor{}, err
		}
		rf.result = b
		sig.Result = b.Type()
	}

	return FuncDescriptor{
		Name:     name,
		Sig:      sig,
		Mode:     mode,
		Nullable: mode == Sync && res != nil && res.Kind() == reflect.Pointer,
		Fn:       rf.call,
	}, nil
}

func (f *reflectFunc) call(c *Call) (value.Value, error) {
	in := make([]reflect.Value, 0, len(f.params)+1)
	if f.withCall {
		in = append(in, reflect.ValueOf(c))
	}
	for i, p := range f.params {
		gv, err := p.ToGo(c.Arg(i))
		if err != nil {
			return value.Value{}, err
		}
		in = append(in, gv)
	}

	out := f.fn.Call(in)
	if f.hasErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return value.Value{}, errv.Interface().(error)
		}
	}
	if f.result == nil {
		return value.Absent(), nil
	}
	return f.result.FromGo(out[0])
}
