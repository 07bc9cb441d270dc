package transcoder

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// FromWIT maps a WIT type onto the native type model so that interface
// definitions can describe bound functions and records.
//
// list<u8> maps to a buffer, enums to strings, and option<T> fields become
// optional nullable properties. 64-bit integers have no native counterpart.
func FromWIT(t wit.Type) (*value.Type, error) {
	return fromWIT(t, nil)
}

func fromWIT(t wit.Type, path []string) (*value.Type, error) {
	switch t := t.(type) {
	case wit.Bool:
		return value.TypeBool, nil
	case wit.S8, wit.S16, wit.S32:
		return value.TypeInt32, nil
	case wit.U8, wit.U16, wit.U32:
		return value.TypeUint32, nil
	case wit.F32:
		return value.TypeFloat32, nil
	case wit.F64:
		return value.TypeFloat64, nil
	case wit.String, wit.Char:
		return value.TypeString, nil
	case *wit.TypeDef:
		return fromWITDef(t, path)
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported WIT type: %T", t).
		Build()
}

func fromWITDef(t *wit.TypeDef, path []string) (*value.Type, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		fields := make([]value.PropertySpec, 0, len(kind.Fields))
		for _, f := range kind.Fields {
			fieldPath := append(append([]string{}, path...), f.Name)
			if opt, ok := optionOf(f.Type); ok {
				ft, err := fromWIT(opt.Type, fieldPath)
				if err != nil {
					return nil, err
				}
				fields = append(fields, value.Optional(f.Name, ft).OrNull())
				continue
			}
			ft, err := fromWIT(f.Type, fieldPath)
			if err != nil {
				return nil, err
			}
			fields = append(fields, value.Required(f.Name, ft))
		}
		return value.ObjectOf(fields...), nil
	case *wit.List:
		if _, ok := kind.Type.(wit.U8); ok {
			return value.TypeBuffer, nil
		}
		elem, err := fromWIT(kind.Type, append(append([]string{}, path...), "[elem]"))
		if err != nil {
			return nil, err
		}
		return value.ArrayOf(elem), nil
	case *wit.Tuple:
		slots := make([]*value.Type, len(kind.Types))
		for i, st := range kind.Types {
			slot, err := fromWIT(st, append(append([]string{}, path...), errors.Index(i)))
			if err != nil {
				return nil, err
			}
			slots[i] = slot
		}
		return value.TupleOf(slots...), nil
	case *wit.Enum:
		return value.TypeString, nil
	case *wit.Option:
		// outside a record the option collapses to its payload
		return fromWIT(kind.Type, path)
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported WIT type kind: %T", t.Kind).
		Build()
}

func optionOf(t wit.Type) (*wit.Option, bool) {
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return nil, false
	}
	opt, ok := td.Kind.(*wit.Option)
	return opt, ok
}
