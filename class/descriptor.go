package class

import (
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// Policy controls how instances may be constructed.
type Policy uint8

const (
	// Public classes are constructed from script with new.
	Public Policy = iota
	// FactoryOnly classes can only be constructed by native code through
	// Class.New; new from script fails with ConstructionForbidden.
	FactoryOnly
)

func (p Policy) String() string {
	if p == FactoryOnly {
		return "factory_only"
	}
	return "public"
}

// Method is an instance method. Fn receives the instance the method was
// called on and the arguments decoded against Sig.
type Method struct {
	Sig  *value.Signature
	Fn   func(inst *Instance, args []value.Value) (value.Value, error)
	Name string
}

// Static is a read-only member of the constructor.
type Static struct {
	Value value.Value
	Name  string
}

// Descriptor declares a class.
type Descriptor struct {
	// Init builds native state once the fields are populated, for both
	// script construction and Class.New. An error aborts construction.
	Init func(inst *Instance) error
	// Finalize releases native resources when the instance is destroyed.
	// It runs on the host thread: after Class.Destroy, after the host
	// garbage collector reclaimed the object, or when the environment
	// closes.
	Finalize func(inst *Instance)

	Name   string
	Fields []value.PropertySpec
	// CtorParams lists the fields taken by the constructor, in argument
	// order. Nil means every field in declaration order.
	CtorParams []string
	Statics    []Static
	Methods    []Method
	Policy     Policy
}

func (d *Descriptor) validate() (map[string]int, []int, error) {
	if d == nil || d.Name == "" {
		return nil, nil, errors.InvalidInput(errors.PhaseClass, "class needs a name")
	}
	index := make(map[string]int, len(d.Fields))
	for i, f := range d.Fields {
		if f.Name == "" || f.Type == nil {
			return nil, nil, errors.InvalidInput(errors.PhaseClass, d.Name+": field needs a name and a type")
		}
		if _, dup := index[f.Name]; dup {
			return nil, nil, errors.InvalidInput(errors.PhaseClass, d.Name+": duplicate field "+f.Name)
		}
		index[f.Name] = i
	}

	params := make([]int, 0, len(d.Fields))
	if d.CtorParams == nil {
		for i := range d.Fields {
			params = append(params, i)
		}
	} else {
		seen := make(map[string]bool, len(d.CtorParams))
		for _, name := range d.CtorParams {
			i, ok := index[name]
			if !ok {
				return nil, nil, errors.NotFound(errors.PhaseClass, d.Name+" constructor parameter", name)
			}
			if seen[name] {
				return nil, nil, errors.InvalidInput(errors.PhaseClass, d.Name+": duplicate constructor parameter "+name)
			}
			seen[name] = true
			params = append(params, i)
		}
		if d.Policy == Public {
			for _, f := range d.Fields {
				if !seen[f.Name] && !f.Optional {
					return nil, nil, errors.InvalidInput(errors.PhaseClass, d.Name+": required field "+f.Name+" is not a constructor parameter")
				}
			}
		}
	}

	for _, m := range d.Methods {
		if m.Name == "" || m.Fn == nil {
			return nil, nil, errors.InvalidInput(errors.PhaseClass, d.Name+": method needs a name and a body")
		}
		if _, clash := index[m.Name]; clash {
			return nil, nil, errors.InvalidInput(errors.PhaseClass, d.Name+": method "+m.Name+" shadows a field")
		}
	}
	return index, params, nil
}
