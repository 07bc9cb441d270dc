package value

// Function is a callable carried by a Function value.
//
// Native functions run on whichever goroutine calls them. Functions that
// reference host callbacks are only callable on the host thread and report
// an error elsewhere.
type Function interface {
	Call(args ...Value) (Value, error)
	Signature() *Signature
}

// NativeFunc is a Go implementation of Function.
type NativeFunc struct {
	sig *Signature
	fn  func(args []Value) (Value, error)
}

// NewFunc wraps fn with its signature.
func NewFunc(sig *Signature, fn func(args []Value) (Value, error)) *NativeFunc {
	return &NativeFunc{sig: sig, fn: fn}
}

// FuncValue is shorthand for Func(NewFunc(sig, fn)).
func FuncValue(sig *Signature, fn func(args []Value) (Value, error)) Value {
	return Func(NewFunc(sig, fn))
}

func (f *NativeFunc) Call(args ...Value) (Value, error) {
	return f.fn(args)
}

func (f *NativeFunc) Signature() *Signature {
	return f.sig
}
