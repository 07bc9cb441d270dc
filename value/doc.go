// Package value defines the native side of the host boundary.
//
// Value is a tagged variant over the native data model: 32-bit integers,
// floats, booleans, UTF-8 strings, arrays, tuples, objects, functions,
// byte buffers, Null and Absent. Null and Absent are distinct: Null is an
// explicit empty value, Absent means a field was not provided.
//
// Type describes the shape a value is expected to have at the boundary.
// Object shapes are lists of PropertySpec, each required, optional (with an
// optional default) or nullable. Types are registered once and shared.
//
//	person := value.ObjectOf(
//		value.Required("name", value.TypeString),
//		value.OptionalDefault("age", value.TypeUint32, value.Uint32(18)),
//		value.Nullable("nickname", value.TypeString),
//	)
package value
