package value

import (
	"github.com/wippyai/js-runtime/errors"
)

// Check verifies that v conforms to t. A nil type accepts any value.
//
// Absent is only accepted for optional fields and Null only for nullable
// fields, mirroring what the host-to-native direction enforces.
func Check(t *Type, v Value) error {
	return check(t, v, nil)
}

func check(t *Type, v Value, path []string) error {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindArray:
		if v.kind != KindArray {
			return mismatch(path, t, v)
		}
		for i, item := range v.items {
			if err := check(t.Elem, item, append(path, errors.Index(i))); err != nil {
				return err
			}
		}
		return nil
	case KindTuple:
		if v.kind != KindTuple && v.kind != KindArray {
			return mismatch(path, t, v)
		}
		if len(v.items) != len(t.Slots) {
			return errors.ArityMismatch(errors.PhaseToHost, path, len(t.Slots), len(v.items))
		}
		for i, slot := range t.Slots {
			if err := check(slot, v.items[i], append(path, errors.Index(i))); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		if v.kind != KindObject {
			return mismatch(path, t, v)
		}
		for _, spec := range t.Fields {
			fv, ok := v.Get(spec.Name)
			fieldPath := append(path, spec.Name)
			switch {
			case !ok || fv.kind == KindAbsent:
				if !spec.Optional {
					return errors.FieldMissing(errors.PhaseToHost, fieldPath, spec.Name)
				}
			case fv.kind == KindNull:
				if !spec.Nullable {
					return mismatch(fieldPath, spec.Type, fv)
				}
			default:
				if err := check(spec.Type, fv, fieldPath); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if v.kind != t.Kind {
		return mismatch(path, t, v)
	}
	return nil
}

func mismatch(path []string, t *Type, v Value) error {
	return errors.TypeMismatch(errors.PhaseToHost, path, t.String(), v.kind.String())
}
