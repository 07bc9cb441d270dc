package value

// Kind is the active tag of a Value and the discriminator of a Type.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindInt32
	KindUint32
	KindFloat32
	KindFloat64
	KindString
	KindArray
	KindTuple
	KindObject
	KindFunction
	KindBuffer
)

var kindNames = [...]string{
	KindAbsent:   "absent",
	KindNull:     "null",
	KindBool:     "bool",
	KindInt32:    "int32",
	KindUint32:   "uint32",
	KindFloat32:  "float32",
	KindFloat64:  "float64",
	KindString:   "string",
	KindArray:    "array",
	KindTuple:    "tuple",
	KindObject:   "object",
	KindFunction: "function",
	KindBuffer:   "buffer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsNumeric reports whether the kind maps to a host number.
func (k Kind) IsNumeric() bool {
	return k >= KindInt32 && k <= KindFloat64
}

// IsPrimitive reports whether the kind carries no nested values.
func (k Kind) IsPrimitive() bool {
	return k <= KindString || k == KindBuffer
}
