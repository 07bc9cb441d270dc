package value

import (
	"strings"
)

// Type describes the shape a boundary value is expected to have.
type Type struct {
	Elem      *Type
	Signature *Signature
	Slots     []*Type
	Fields    []PropertySpec
	Kind      Kind
}

// Predeclared primitive types.
var (
	TypeBool    = &Type{Kind: KindBool}
	TypeInt32   = &Type{Kind: KindInt32}
	TypeUint32  = &Type{Kind: KindUint32}
	TypeFloat32 = &Type{Kind: KindFloat32}
	TypeFloat64 = &Type{Kind: KindFloat64}
	TypeString  = &Type{Kind: KindString}
	TypeBuffer  = &Type{Kind: KindBuffer}
	TypeNull    = &Type{Kind: KindNull}
)

// ArrayOf describes a homogeneous array.
func ArrayOf(elem *Type) *Type {
	return &Type{Kind: KindArray, Elem: elem}
}

// TupleOf describes a fixed-arity heterogeneous sequence.
func TupleOf(slots ...*Type) *Type {
	return &Type{Kind: KindTuple, Slots: slots}
}

// ObjectOf describes a structured object.
func ObjectOf(fields ...PropertySpec) *Type {
	return &Type{Kind: KindObject, Fields: fields}
}

// FuncOf describes a callable. A nil result means the function returns nothing.
func FuncOf(result *Type, params ...*Type) *Type {
	return &Type{Kind: KindFunction, Signature: &Signature{Params: params, Result: result}}
}

// Field returns the property spec with the given name.
func (t *Type) Field(name string) (PropertySpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return PropertySpec{}, false
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case KindArray:
		return "array<" + t.Elem.String() + ">"
	case KindTuple:
		parts := make([]string, len(t.Slots))
		for i, s := range t.Slots {
			parts[i] = s.String()
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case KindObject:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "object{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return t.Signature.String()
	}
	return t.Kind.String()
}

// Signature is the ordered parameter list and result of a callable.
type Signature struct {
	Result *Type
	Params []*Type
}

func (s *Signature) String() string {
	if s == nil {
		return "func()"
	}
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	out := "func(" + strings.Join(parts, ", ") + ")"
	if s.Result != nil {
		out += " " + s.Result.String()
	}
	return out
}

// PropertySpec defines one field of a structured object contract.
//
// A field must be present unless Optional is set. Optional fields may be
// omitted (Absent, or Default when set); Nullable fields accept an explicit
// null which is kept as Null and never replaced by Default.
type PropertySpec struct {
	Default  *Value
	Type     *Type
	Name     string
	Optional bool
	Nullable bool
}

// Required declares a field that must be provided.
func Required(name string, t *Type) PropertySpec {
	return PropertySpec{Name: name, Type: t}
}

// Optional declares a field that may be omitted.
func Optional(name string, t *Type) PropertySpec {
	return PropertySpec{Name: name, Type: t, Optional: true}
}

// OptionalDefault declares an optional field whose omission yields def.
func OptionalDefault(name string, t *Type, def Value) PropertySpec {
	return PropertySpec{Name: name, Type: t, Optional: true, Default: &def}
}

// Nullable declares a field that accepts null.
func Nullable(name string, t *Type) PropertySpec {
	return PropertySpec{Name: name, Type: t, Nullable: true}
}

// OrNull returns a copy of p that also accepts null.
func (p PropertySpec) OrNull() PropertySpec {
	p.Nullable = true
	return p
}

// IsRequired reports whether the field must be present.
func (p PropertySpec) IsRequired() bool {
	return !p.Optional
}

func (p PropertySpec) String() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Optional {
		b.WriteByte('?')
	}
	b.WriteString(": ")
	b.WriteString(p.Type.String())
	if p.Nullable {
		b.WriteString("|null")
	}
	if p.Default != nil {
		b.WriteString(" = ")
		b.WriteString(p.Default.String())
	}
	return b.String()
}
