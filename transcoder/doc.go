// Package transcoder converts values between the goja host runtime and the
// native value model.
//
// Conversion is driven by an expected type on the native side:
//
//	┌──────────────────────────────────────────────────────────────┐
//	│ goja.Value ←→ [Bridge] ←→ value.Value ←→ [Binding] ←→ Go     │
//	└──────────────────────────────────────────────────────────────┘
//
// # Host to Native
//
// Bridge.ToNative and Bridge.Args validate shape before anything runs.
// A mismatch produces a TypeMismatch error whose path names the offending
// element, for example args[0].items[2].id.
//
//	Expected        Accepts
//	─────────────────────────────────────────────
//	bool            boolean
//	int32/uint32    number (wrap or strict policy)
//	float32/64      number
//	string          string (lone surrogates → U+FFFD)
//	array<T>        Array
//	tuple(...)      Array of exact length
//	object{...}     non-array object
//	function        any callable
//	buffer          ArrayBuffer, typed array, DataView
//
// Object properties may be optional (with an optional default) and
// nullable. A missing required property fails with FieldMissing.
//
// # Native to Host
//
// Bridge.ToHost produces fresh host values. Absent object properties are
// omitted. Native functions become callable host functions through
// Bridge.WrapFunc, and host functions passed into native code come back as
// HostFunc values that may only be called on the host thread.
//
// # Go Bindings
//
// Compiler infers native types from Go types (struct fields read the js
// tag) and compiles cached Bindings that move values in and out of Go:
//
//	type Person struct {
//	    Name string `js:"name"`
//	    Age  uint32 `js:"age,optional,default=18"`
//	}
//
// FromWIT maps WIT interface types onto the same model.
//
// # Errors
//
// Bridge.Throw raises a native error as a host exception whose name is the
// error class (TypeMismatchError, NativeFailureError, ...) and whose message
// is the failure reason. FromException reverses the mapping.
package transcoder
