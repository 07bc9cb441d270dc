package transcoder

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder/internal/coerce"
	"github.com/wippyai/js-runtime/value"
)

// decoder lifts host values into native values.
type decoder struct {
	bridge *Bridge
}

func (d *decoder) decode(v goja.Value, t *value.Type, path []string) (value.Value, error) {
	if t == nil {
		return value.Absent(), nil
	}
	switch t.Kind {
	case value.KindNull:
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return value.Null(), nil
		}
		return value.Value{}, d.mismatch(path, t, v)
	case value.KindBool:
		if v == nil {
			return value.Value{}, d.mismatch(path, t, v)
		}
		b, ok := v.Export().(bool)
		if !ok {
			return value.Value{}, d.mismatch(path, t, v)
		}
		return value.Bool(b), nil
	case value.KindInt32, value.KindUint32, value.KindFloat32, value.KindFloat64:
		return d.decodeNumber(v, t, path)
	case value.KindString:
		if v == nil || !goja.IsString(v) {
			return value.Value{}, d.mismatch(path, t, v)
		}
		// lone surrogates become U+FFFD here
		return value.String(v.String()), nil
	case value.KindArray:
		return d.decodeArray(v, t, path)
	case value.KindTuple:
		return d.decodeTuple(v, t, path)
	case value.KindObject:
		return d.decodeObject(v, t, path)
	case value.KindFunction:
		return d.decodeFunction(v, t, path)
	case value.KindBuffer:
		data, ok := d.bridge.Bytes(v)
		if !ok {
			return value.Value{}, d.mismatch(path, t, v)
		}
		out := make([]byte, len(data))
		copy(out, data)
		return value.Buffer(out), nil
	}
	return value.Value{}, errors.New(errors.PhaseToNative, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported expected type %s", t).
		Build()
}

func (d *decoder) decodeNumber(v goja.Value, t *value.Type, path []string) (value.Value, error) {
	if v == nil || !goja.IsNumber(v) {
		return value.Value{}, d.mismatch(path, t, v)
	}
	f := v.ToFloat()
	switch t.Kind {
	case value.KindInt32:
		if d.bridge.policy == NumericStrict {
			i, ok := coerce.StrictInt32(f)
			if !ok {
				return value.Value{}, errors.RangeOverflow(errors.PhaseToNative, path, f, "int32")
			}
			return value.Int32(i), nil
		}
		return value.Int32(coerce.WrapInt32(f)), nil
	case value.KindUint32:
		if d.bridge.policy == NumericStrict {
			u, ok := coerce.StrictUint32(f)
			if !ok {
				return value.Value{}, errors.RangeOverflow(errors.PhaseToNative, path, f, "uint32")
			}
			return value.Uint32(u), nil
		}
		return value.Uint32(coerce.WrapUint32(f)), nil
	case value.KindFloat32:
		return value.Float32(coerce.Float32(f)), nil
	}
	return value.Float64(f), nil
}

const arrayPrealloc = 1024

func (d *decoder) array(v goja.Value, t *value.Type, path []string) (*goja.Object, int, error) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		return nil, 0, d.mismatch(path, t, v)
	}
	return obj, int(obj.Get("length").ToInteger()), nil
}

func (d *decoder) decodeArray(v goja.Value, t *value.Type, path []string) (value.Value, error) {
	obj, n, err := d.array(v, t, path)
	if err != nil {
		return value.Value{}, err
	}
	// length is host-controlled; a sparse array may claim far more
	// elements than it holds
	items := make([]value.Value, 0, min(n, arrayPrealloc))
	for i := 0; i < n; i++ {
		item, err := d.decode(obj.Get(strconv.Itoa(i)), t.Elem, append(path, errors.Index(i)))
		if err != nil {
			return value.Value{}, err
		}
		items = append(items, item)
	}
	return value.Array(items...), nil
}

func (d *decoder) decodeTuple(v goja.Value, t *value.Type, path []string) (value.Value, error) {
	obj, n, err := d.array(v, t, path)
	if err != nil {
		return value.Value{}, err
	}
	if n != len(t.Slots) {
		return value.Value{}, errors.ArityMismatch(errors.PhaseToNative, path, len(t.Slots), n)
	}
	slots := make([]value.Value, n)
	for i, st := range t.Slots {
		slot, err := d.decode(obj.Get(strconv.Itoa(i)), st, append(path, errors.Index(i)))
		if err != nil {
			return value.Value{}, err
		}
		slots[i] = slot
	}
	return value.Tuple(slots...), nil
}

func (d *decoder) decodeObject(v goja.Value, t *value.Type, path []string) (value.Value, error) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Array" {
		return value.Value{}, d.mismatch(path, t, v)
	}
	fields := make([]value.Field, 0, len(t.Fields))
	for _, spec := range t.Fields {
		fieldPath := append(path, spec.Name)
		raw := obj.Get(spec.Name)
		switch {
		case raw == nil || goja.IsUndefined(raw):
			if !spec.Optional {
				return value.Value{}, errors.FieldMissing(errors.PhaseToNative, fieldPath, spec.Name)
			}
			if spec.Default != nil {
				fields = append(fields, value.F(spec.Name, *spec.Default))
			} else {
				fields = append(fields, value.F(spec.Name, value.Absent()))
			}
		case goja.IsNull(raw):
			if !spec.Nullable {
				return value.Value{}, d.mismatch(fieldPath, spec.Type, raw)
			}
			fields = append(fields, value.F(spec.Name, value.Null()))
		default:
			fv, err := d.decode(raw, spec.Type, fieldPath)
			if err != nil {
				return value.Value{}, err
			}
			fields = append(fields, value.F(spec.Name, fv))
		}
	}
	return value.Object(fields...), nil
}

func (d *decoder) decodeFunction(v goja.Value, t *value.Type, path []string) (value.Value, error) {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return value.Value{}, d.mismatch(path, t, v)
	}
	return value.Func(&HostFunc{
		bridge: d.bridge,
		fn:     fn,
		val:    v,
		sig:    t.Signature,
	}), nil
}

func (d *decoder) mismatch(path []string, t *value.Type, v goja.Value) error {
	return errors.TypeMismatch(errors.PhaseToNative, path, t.String(), hostType(v))
}

// Bytes returns the bytes viewed by an ArrayBuffer, typed array or DataView.
// The slice aliases host memory.
func (b *Bridge) Bytes(v goja.Value) ([]byte, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	if obj.ExportType() == arrayBufferType {
		ab, _ := obj.Export().(goja.ArrayBuffer)
		return ab.Bytes(), true
	}
	if !b.isView(obj) {
		return nil, false
	}
	var data []byte
	if err := b.rt.ExportTo(obj, &data); err != nil {
		return nil, false
	}
	return data, true
}

func (b *Bridge) isView(obj *goja.Object) bool {
	ctor, ok := b.rt.Get("ArrayBuffer").(*goja.Object)
	if !ok {
		return false
	}
	isView, ok := goja.AssertFunction(ctor.Get("isView"))
	if !ok {
		return false
	}
	res, err := isView(ctor, obj)
	return err == nil && res.ToBoolean()
}
