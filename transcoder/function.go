package transcoder

import (
	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// HostFunc is a host function lifted into the native value model.
// It may only be called on the host thread.
type HostFunc struct {
	bridge *Bridge
	fn     goja.Callable
	val    goja.Value
	sig    *value.Signature
}

var _ value.Function = (*HostFunc)(nil)

// Call encodes args, invokes the host function and decodes the result
// against the declared result type. A host exception comes back as a
// NativeFailure carrying the exception message.
func (f *HostFunc) Call(args ...value.Value) (value.Value, error) {
	if !f.bridge.onHost() {
		return value.Value{}, errors.WrongThread(errors.PhaseCall, "HostFunc.Call")
	}

	buf := getArgs(len(args))
	defer putArgs(buf)

	e := encoder{bridge: f.bridge}
	for i, arg := range args {
		hv, err := e.encode(arg, []string{"args", errors.Index(i)})
		if err != nil {
			return value.Value{}, err
		}
		*buf = append(*buf, hv)
	}

	res, err := f.fn(goja.Undefined(), *buf...)
	if err != nil {
		return value.Value{}, FromException(err)
	}
	if f.sig == nil || f.sig.Result == nil {
		return value.Absent(), nil
	}
	d := decoder{bridge: f.bridge}
	return d.decode(res, f.sig.Result, []string{"result"})
}

// Signature returns the expected signature, or nil when the callback was
// accepted without one.
func (f *HostFunc) Signature() *value.Signature {
	return f.sig
}

// Value returns the underlying host function.
func (f *HostFunc) Value() goja.Value {
	return f.val
}

// WrapFunc exposes a native function to the host. Arguments are decoded
// against the signature before fn runs; errors surface as host exceptions.
func (b *Bridge) WrapFunc(fn value.Function) goja.Value {
	sig := fn.Signature()
	return b.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		args, err := b.Args(call.Arguments, sig.Params)
		if err != nil {
			b.Throw(err)
		}
		out, err := fn.Call(args...)
		if err != nil {
			b.Throw(err)
		}
		hv, err := b.ToHostTyped(out, sig.Result)
		if err != nil {
			b.Throw(err)
		}
		return hv
	})
}
