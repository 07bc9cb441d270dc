package transcoder

import (
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// encoder lowers native values into host values.
type encoder struct {
	bridge *Bridge
}

func (e *encoder) encode(v value.Value, path []string) (goja.Value, error) {
	rt := e.bridge.rt
	switch v.Kind() {
	case value.KindAbsent:
		return goja.Undefined(), nil
	case value.KindNull:
		return goja.Null(), nil
	case value.KindBool:
		return rt.ToValue(v.Bool()), nil
	case value.KindInt32:
		return rt.ToValue(int64(v.Int32())), nil
	case value.KindUint32:
		return rt.ToValue(int64(v.Uint32())), nil
	case value.KindFloat32:
		return rt.ToValue(float64(v.Float32())), nil
	case value.KindFloat64:
		return rt.ToValue(v.Float64()), nil
	case value.KindString:
		s := v.Str()
		if !utf8.ValidString(s) {
			s = strings.ToValidUTF8(s, "�")
		}
		return rt.ToValue(s), nil
	case value.KindArray, value.KindTuple:
		items := v.Items()
		out := make([]any, len(items))
		for i, item := range items {
			hv, err := e.encode(item, append(path, errors.Index(i)))
			if err != nil {
				return nil, err
			}
			out[i] = hv
		}
		return rt.NewArray(out...), nil
	case value.KindObject:
		obj := rt.NewObject()
		for _, f := range v.Fields() {
			if f.Value.IsAbsent() {
				continue
			}
			hv, err := e.encode(f.Value, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			if err := obj.Set(f.Name, hv); err != nil {
				return nil, errors.New(errors.PhaseToHost, errors.KindInvalidInput).
					Path(append(path, f.Name)...).
					Cause(err).
					Build()
			}
		}
		return obj, nil
	case value.KindFunction:
		return e.encodeFunction(v.Function(), path)
	case value.KindBuffer:
		data := make([]byte, len(v.Bytes()))
		copy(data, v.Bytes())
		return rt.ToValue(rt.NewArrayBuffer(data)), nil
	}
	return nil, errors.New(errors.PhaseToHost, errors.KindUnsupported).
		Path(path...).
		Detail("unknown value kind %s", v.Kind()).
		Build()
}

func (e *encoder) encodeFunction(fn value.Function, path []string) (goja.Value, error) {
	if fn == nil {
		return nil, errors.New(errors.PhaseToHost, errors.KindInvalidInput).
			Path(path...).
			Detail("nil function").
			Build()
	}
	if hf, ok := fn.(*HostFunc); ok && hf.bridge.rt == e.bridge.rt {
		return hf.val, nil
	}
	if fn.Signature() == nil {
		return nil, errors.New(errors.PhaseToHost, errors.KindInvalidInput).
			Path(path...).
			Detail("native function without signature").
			Build()
	}
	return e.bridge.WrapFunc(fn), nil
}
