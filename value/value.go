package value

import (
	"math"
	"strconv"
	"strings"
)

// Value is a native value crossing the host boundary.
//
// Exactly one tag is active. The zero Value is Absent. Values are treated as
// immutable once built, so they may be handed between goroutines; callers must
// not mutate slices obtained from Items, Fields or Bytes.
type Value struct {
	fn     Function
	str    string
	items  []Value
	fields []Field
	buf    []byte
	num    float64
	bits   uint32
	b      bool
	kind   Kind
}

// Field is one named member of an Object value.
type Field struct {
	Name  string
	Value Value
}

// F builds a Field.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

func Absent() Value              { return Value{} }
func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int32(i int32) Value        { return Value{kind: KindInt32, bits: uint32(i)} }
func Uint32(u uint32) Value      { return Value{kind: KindUint32, bits: u} }
func Float32(f float32) Value    { return Value{kind: KindFloat32, num: float64(f)} }
func Float64(f float64) Value    { return Value{kind: KindFloat64, num: f} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }
func Tuple(slots ...Value) Value { return Value{kind: KindTuple, items: slots} }
func Buffer(b []byte) Value      { return Value{kind: KindBuffer, buf: b} }

// Object builds an object value. Field order is preserved.
func Object(fields ...Field) Value {
	return Value{kind: KindObject, fields: fields}
}

// Func wraps a native callable.
func Func(fn Function) Value {
	return Value{kind: KindFunction, fn: fn}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsAbsent() bool   { return v.kind == KindAbsent }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Bool() bool       { return v.b }
func (v Value) Int32() int32     { return int32(v.bits) }
func (v Value) Uint32() uint32   { return v.bits }
func (v Value) Float32() float32 { return float32(v.num) }
func (v Value) Str() string      { return v.str }
func (v Value) Items() []Value   { return v.items }
func (v Value) Fields() []Field  { return v.fields }
func (v Value) Bytes() []byte    { return v.buf }
func (v Value) Function() Function {
	return v.fn
}

// Float64 returns the value as a host number for any numeric kind.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindInt32:
		return float64(int32(v.bits))
	case KindUint32:
		return float64(v.bits)
	}
	return v.num
}

// Len returns the number of items, fields or bytes.
func (v Value) Len() int {
	switch v.kind {
	case KindArray, KindTuple:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	case KindBuffer:
		return len(v.buf)
	case KindString:
		return len(v.str)
	}
	return 0
}

// Index returns the i-th array item or tuple slot.
func (v Value) Index(i int) Value {
	if i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Get returns the named object field. Missing fields report Absent and false.
func (v Value) Get(name string) (Value, bool) {
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Field returns the named field or Absent.
func (v Value) Field(name string) Value {
	f, _ := v.Get(name)
	return f
}

// With returns a copy of an object value with the named field replaced or appended.
func (v Value) With(name string, val Value) Value {
	fields := make([]Field, 0, len(v.fields)+1)
	replaced := false
	for _, f := range v.fields {
		if f.Name == name {
			fields = append(fields, Field{Name: name, Value: val})
			replaced = true
			continue
		}
		fields = append(fields, f)
	}
	if !replaced {
		fields = append(fields, Field{Name: name, Value: val})
	}
	return Value{kind: KindObject, fields: fields}
}

// Equal reports deep equality. NaN equals NaN; functions are equal by reference.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAbsent, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt32, KindUint32:
		return a.bits == b.bits
	case KindFloat32, KindFloat64:
		if math.IsNaN(a.num) && math.IsNaN(b.num) {
			return true
		}
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray, KindTuple:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for _, f := range a.fields {
			other, ok := b.Get(f.Name)
			if !ok || !Equal(f.Value, other) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.fn == b.fn
	case KindBuffer:
		return string(a.buf) == string(b.buf)
	}
	return false
}

// String formats the value for logs and diagnostics.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.kind {
	case KindAbsent:
		b.WriteString("absent")
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindInt32:
		b.WriteString(strconv.FormatInt(int64(int32(v.bits)), 10))
	case KindUint32:
		b.WriteString(strconv.FormatUint(uint64(v.bits), 10))
	case KindFloat32:
		b.WriteString(strconv.FormatFloat(v.num, 'g', -1, 32))
	case KindFloat64:
		b.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
	case KindString:
		b.WriteString(strconv.Quote(v.str))
	case KindArray, KindTuple:
		open, closing := "[", "]"
		if v.kind == KindTuple {
			open, closing = "(", ")"
		}
		b.WriteString(open)
		for i, item := range v.items {
			if i > 0 {
				b.WriteString(", ")
			}
			item.format(b)
		}
		b.WriteString(closing)
	case KindObject:
		b.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			f.Value.format(b)
		}
		b.WriteByte('}')
	case KindFunction:
		b.WriteString("function")
		if v.fn != nil && v.fn.Signature() != nil {
			b.WriteString(strings.TrimPrefix(v.fn.Signature().String(), "func"))
		}
	case KindBuffer:
		b.WriteString("buffer(")
		b.WriteString(strconv.Itoa(len(v.buf)))
		b.WriteByte(')')
	}
}
