package transcoder

import (
	"reflect"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

type bindKind uint8

const (
	bindPrimitive bindKind = iota
	bindInt
	bindUint
	bindFloat
	bindBytes
	bindNull
	bindValue
	bindPointer
	bindSlice
	bindTuple
	bindStruct
	bindFunc
	bindFunction
)

// Binding converts between one Go type and native values of one type.
// Bindings are immutable once compiled.
type Binding struct {
	goType reflect.Type
	typ    *value.Type
	elem   *Binding
	fn     *funcBinding
	fields []fieldBinding
	kind   bindKind
}

type fieldBinding struct {
	bind  *Binding
	index []int
	spec  value.PropertySpec
}

type funcBinding struct {
	result *Binding
	params []*Binding
	hasErr bool
}

// GoType returns the bound Go type.
func (b *Binding) GoType() reflect.Type { return b.goType }

// Type returns the bound native type.
func (b *Binding) Type() *value.Type { return b.typ }

// FromGo lifts a Go value into a native value.
func (b *Binding) FromGo(v reflect.Value) (value.Value, error) {
	return b.fromGo(v, nil)
}

// ToGo lowers a native value into a new Go value of the bound type.
func (b *Binding) ToGo(v value.Value) (reflect.Value, error) {
	dst := reflect.New(b.goType).Elem()
	if err := b.toGo(v, dst, nil); err != nil {
		return reflect.Value{}, err
	}
	return dst, nil
}

func (b *Binding) fromGo(v reflect.Value, path []string) (value.Value, error) {
	switch b.kind {
	case bindValue:
		return v.Interface().(value.Value), nil
	case bindNull:
		return value.Null(), nil
	case bindPointer:
		if v.IsNil() {
			return value.Null(), nil
		}
		return b.elem.fromGo(v.Elem(), path)
	case bindPrimitive:
		if v.Kind() == reflect.Bool {
			return value.Bool(v.Bool()), nil
		}
		return value.String(v.String()), nil
	case bindInt:
		i := v.Int()
		if !fitsInt32(i) {
			return value.Value{}, errors.RangeOverflow(errors.PhaseToHost, path, i, "int32")
		}
		return value.Int32(int32(i)), nil
	case bindUint:
		u := v.Uint()
		if u > 1<<32-1 {
			return value.Value{}, errors.RangeOverflow(errors.PhaseToHost, path, u, "uint32")
		}
		return value.Uint32(uint32(u)), nil
	case bindFloat:
		if b.typ.Kind == value.KindFloat32 {
			return value.Float32(float32(v.Float())), nil
		}
		return value.Float64(v.Float()), nil
	case bindBytes:
		if v.IsNil() {
			return value.Buffer(nil), nil
		}
		return value.Buffer(v.Bytes()), nil
	case bindSlice:
		items := make([]value.Value, v.Len())
		for i := range items {
			item, err := b.elem.fromGo(v.Index(i), append(path, errors.Index(i)))
			if err != nil {
				return value.Value{}, err
			}
			items[i] = item
		}
		return value.Array(items...), nil
	case bindTuple:
		slots := make([]value.Value, len(b.fields))
		for i, f := range b.fields {
			slot, err := f.bind.fromGo(v.FieldByIndex(f.index), append(path, errors.Index(i)))
			if err != nil {
				return value.Value{}, err
			}
			slots[i] = slot
		}
		return value.Tuple(slots...), nil
	case bindStruct:
		return b.structFromGo(v, path)
	case bindFunc:
		if v.IsNil() {
			return value.Null(), nil
		}
		return value.Func(b.fn.native(b.typ.Signature, v)), nil
	case bindFunction:
		if v.IsNil() {
			return value.Null(), nil
		}
		return value.Func(v.Interface().(value.Function)), nil
	}
	return value.Value{}, errors.Unsupported(errors.PhaseToHost, b.goType.String())
}

func (b *Binding) structFromGo(v reflect.Value, path []string) (value.Value, error) {
	fields := make([]value.Field, 0, len(b.fields))
	for _, f := range b.fields {
		fv := v.FieldByIndex(f.index)
		fieldPath := append(path, f.spec.Name)
		if isNilable(fv) && fv.IsNil() {
			if f.spec.Nullable {
				fields = append(fields, value.F(f.spec.Name, value.Null()))
			} else {
				// left absent; a required field then fails the type check
				fields = append(fields, value.F(f.spec.Name, value.Absent()))
			}
			continue
		}
		nv, err := f.bind.fromGo(fv, fieldPath)
		if err != nil {
			return value.Value{}, err
		}
		fields = append(fields, value.F(f.spec.Name, nv))
	}
	return value.Object(fields...), nil
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Interface:
		return true
	}
	return false
}

func (b *Binding) toGo(v value.Value, dst reflect.Value, path []string) error {
	switch b.kind {
	case bindValue:
		dst.Set(reflect.ValueOf(v))
		return nil
	case bindNull:
		return nil
	case bindPointer:
		if v.IsNull() || v.IsAbsent() {
			dst.SetZero()
			return nil
		}
		ptr := reflect.New(b.goType.Elem())
		if err := b.elem.toGo(v, ptr.Elem(), path); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	}

	if v.IsNull() || v.IsAbsent() {
		dst.SetZero()
		return nil
	}

	switch b.kind {
	case bindPrimitive:
		if dst.Kind() == reflect.Bool {
			if v.Kind() != value.KindBool {
				return b.mismatch(path, v)
			}
			dst.SetBool(v.Bool())
			return nil
		}
		if v.Kind() != value.KindString {
			return b.mismatch(path, v)
		}
		dst.SetString(v.Str())
		return nil
	case bindInt:
		if !v.Kind().IsNumeric() {
			return b.mismatch(path, v)
		}
		i := int64(v.Int32())
		if dst.OverflowInt(i) {
			return errors.RangeOverflow(errors.PhaseToNative, path, i, dst.Type().String())
		}
		dst.SetInt(i)
		return nil
	case bindUint:
		if !v.Kind().IsNumeric() {
			return b.mismatch(path, v)
		}
		u := uint64(v.Uint32())
		if dst.OverflowUint(u) {
			return errors.RangeOverflow(errors.PhaseToNative, path, u, dst.Type().String())
		}
		dst.SetUint(u)
		return nil
	case bindFloat:
		if !v.Kind().IsNumeric() {
			return b.mismatch(path, v)
		}
		dst.SetFloat(v.Float64())
		return nil
	case bindBytes:
		if v.Kind() != value.KindBuffer {
			return b.mismatch(path, v)
		}
		dst.SetBytes(v.Bytes())
		return nil
	case bindSlice:
		if v.Kind() != value.KindArray {
			return b.mismatch(path, v)
		}
		items := v.Items()
		s := reflect.MakeSlice(b.goType, len(items), len(items))
		for i, item := range items {
			if err := b.elem.toGo(item, s.Index(i), append(path, errors.Index(i))); err != nil {
				return err
			}
		}
		dst.Set(s)
		return nil
	case bindTuple:
		if v.Kind() != value.KindTuple && v.Kind() != value.KindArray {
			return b.mismatch(path, v)
		}
		if v.Len() != len(b.fields) {
			return errors.ArityMismatch(errors.PhaseToNative, path, len(b.fields), v.Len())
		}
		for i, f := range b.fields {
			if err := f.bind.toGo(v.Index(i), dst.FieldByIndex(f.index), append(path, errors.Index(i))); err != nil {
				return err
			}
		}
		return nil
	case bindStruct:
		if v.Kind() != value.KindObject {
			return b.mismatch(path, v)
		}
		for _, f := range b.fields {
			fv, _ := v.Get(f.spec.Name)
			if err := f.bind.toGo(fv, dst.FieldByIndex(f.index), append(path, f.spec.Name)); err != nil {
				return err
			}
		}
		return nil
	case bindFunc:
		if v.Kind() != value.KindFunction {
			return b.mismatch(path, v)
		}
		dst.Set(b.fn.goFunc(b.goType, v.Function()))
		return nil
	case bindFunction:
		if v.Kind() != value.KindFunction {
			return b.mismatch(path, v)
		}
		dst.Set(reflect.ValueOf(v.Function()))
		return nil
	}
	return errors.Unsupported(errors.PhaseToNative, b.goType.String())
}

func (b *Binding) mismatch(path []string, v value.Value) error {
	return errors.TypeMismatch(errors.PhaseToNative, path, b.typ.String(), v.Kind().String())
}

// native wraps a Go func as a native function.
func (fb *funcBinding) native(sig *value.Signature, fn reflect.Value) *value.NativeFunc {
	return value.NewFunc(sig, func(args []value.Value) (value.Value, error) {
		in := make([]reflect.Value, len(fb.params))
		for i, p := range fb.params {
			arg := value.Absent()
			if i < len(args) {
				arg = args[i]
			}
			dst := reflect.New(p.goType).Elem()
			if err := p.toGo(arg, dst, []string{"args", errors.Index(i)}); err != nil {
				return value.Value{}, err
			}
			in[i] = dst
		}
		out := fn.Call(in)
		if fb.hasErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return value.Value{}, errv.Interface().(error)
			}
		}
		if fb.result == nil {
			return value.Absent(), nil
		}
		return fb.result.fromGo(out[0], []string{"result"})
	})
}

// goFunc builds a Go func of type goType that calls fn. When goType has
// no error result a failing call panics with the error.
func (fb *funcBinding) goFunc(goType reflect.Type, fn value.Function) reflect.Value {
	return reflect.MakeFunc(goType, func(in []reflect.Value) []reflect.Value {
		out := make([]reflect.Value, goType.NumOut())
		for i := range out {
			out[i] = reflect.New(goType.Out(i)).Elem()
		}
		fail := func(err error) []reflect.Value {
			if !fb.hasErr {
				panic(err)
			}
			out[len(out)-1] = reflect.ValueOf(&err).Elem()
			return out
		}

		args := make([]value.Value, len(in))
		for i, p := range fb.params {
			arg, err := p.fromGo(in[i], []string{"args", errors.Index(i)})
			if err != nil {
				return fail(err)
			}
			args[i] = arg
		}
		res, err := fn.Call(args...)
		if err != nil {
			return fail(err)
		}
		if fb.result != nil {
			if err := fb.result.toGo(res, out[0], []string{"result"}); err != nil {
				return fail(err)
			}
		}
		return out
	})
}
