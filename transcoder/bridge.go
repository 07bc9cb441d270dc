package transcoder

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// Bridge converts values between a goja runtime and the native value model.
//
// A Bridge is bound to one runtime and, like the runtime, must only be used
// from the goroutine that owns it.
type Bridge struct {
	rt     *goja.Runtime
	onHost func() bool
	logger *zap.Logger
	policy NumericPolicy
}

// New creates a Bridge for rt.
func New(rt *goja.Runtime, opts ...Option) *Bridge {
	b := &Bridge{
		rt:     rt,
		onHost: func() bool { return true },
		logger: Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Runtime returns the host runtime the bridge converts for.
func (b *Bridge) Runtime() *goja.Runtime {
	return b.rt
}

// Policy returns the numeric conversion policy.
func (b *Bridge) Policy() NumericPolicy {
	return b.policy
}

// OnHostThread reports whether the caller may touch the host heap.
func (b *Bridge) OnHostThread() bool {
	return b.onHost()
}

// ToNative converts a host value to the expected native type.
// Shape mismatches fail with a TypeMismatch error naming the offending path.
func (b *Bridge) ToNative(v goja.Value, t *value.Type) (value.Value, error) {
	if !b.onHost() {
		return value.Value{}, errors.WrongThread(errors.PhaseToNative, "ToNative")
	}
	d := decoder{bridge: b}
	return d.decode(v, t, nil)
}

// ToHost converts a native value to a host value.
func (b *Bridge) ToHost(v value.Value) (goja.Value, error) {
	if !b.onHost() {
		return nil, errors.WrongThread(errors.PhaseToHost, "ToHost")
	}
	e := encoder{bridge: b}
	return e.encode(v, nil)
}

// ToHostTyped checks v against t before converting it.
func (b *Bridge) ToHostTyped(v value.Value, t *value.Type) (goja.Value, error) {
	if t == nil {
		return goja.Undefined(), nil
	}
	if err := value.Check(t, v); err != nil {
		return nil, err
	}
	return b.ToHost(v)
}

// Args converts call arguments against a parameter list. Every argument is
// checked before any is used, so a shape error never leaves a call half run.
// Missing trailing arguments are treated as undefined.
func (b *Bridge) Args(args []goja.Value, params []*value.Type) ([]value.Value, error) {
	if !b.onHost() {
		return nil, errors.WrongThread(errors.PhaseToNative, "Args")
	}
	out := make([]value.Value, len(params))
	d := decoder{bridge: b}
	for i, p := range params {
		arg := goja.Undefined()
		if i < len(args) {
			arg = args[i]
		}
		v, err := d.decode(arg, p, []string{"args", errors.Index(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Values converts native values to host values, as when building call arguments.
func (b *Bridge) Values(vals []value.Value) ([]goja.Value, error) {
	out := make([]goja.Value, len(vals))
	e := encoder{bridge: b}
	for i, v := range vals {
		hv, err := e.encode(v, []string{"args", errors.Index(i)})
		if err != nil {
			return nil, err
		}
		out[i] = hv
	}
	return out, nil
}
