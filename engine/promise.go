package engine

import (
	"context"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder"
	"github.com/wippyai/js-runtime/value"
)

type settlement struct {
	err error
	val value.Value
}

// Eval runs src on the host thread and converts its completion value to t.
// A nil t discards the result.
func (e *Env) Eval(ctx context.Context, name, src string, t *value.Type) (value.Value, error) {
	var out value.Value
	err := e.Do(ctx, func(rt *goja.Runtime) error {
		v, err := rt.RunScript(name, src)
		if err != nil {
			return transcoder.FromException(err)
		}
		out, err = e.convert(v, t)
		return err
	})
	return out, err
}

// Await runs src and, when its completion value is a promise, waits for it
// to settle. A rejection is returned as an error. Await must not be called
// on the host thread.
func (e *Env) Await(ctx context.Context, name, src string, t *value.Type) (value.Value, error) {
	return e.AwaitFunc(ctx, func(rt *goja.Runtime) (goja.Value, error) {
		v, err := rt.RunScript(name, src)
		return v, transcoder.FromException(err)
	}, t)
}

// AwaitFunc is Await for a value produced by fn on the host thread.
func (e *Env) AwaitFunc(ctx context.Context, fn func(rt *goja.Runtime) (goja.Value, error), t *value.Type) (value.Value, error) {
	if e.OnHostThread() {
		return value.Value{}, errors.WrongThread(errors.PhaseHost, "Await")
	}

	done := make(chan settlement, 1)
	release := e.Keep()
	defer release()

	err := e.Do(ctx, func(rt *goja.Runtime) error {
		v, err := fn(rt)
		if err != nil {
			return err
		}
		e.settle(v, t, done)
		return nil
	})
	if err != nil {
		return value.Value{}, err
	}

	select {
	case s := <-done:
		return s.val, s.err
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	case <-e.done:
		select {
		case s := <-done:
			return s.val, s.err
		default:
			return value.Value{}, errors.Closed(errors.PhaseHost, "environment")
		}
	}
}

// settle delivers the outcome of v to done once v is no longer pending.
func (e *Env) settle(v goja.Value, t *value.Type, done chan<- settlement) {
	p, ok := asPromise(v)
	if !ok {
		val, err := e.convert(v, t)
		done <- settlement{val: val, err: err}
		return
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		val, err := e.convert(p.Result(), t)
		done <- settlement{val: val, err: err}
		return
	case goja.PromiseStateRejected:
		done <- settlement{err: transcoder.FromRejection(p.Result())}
		return
	}

	then, _ := goja.AssertFunction(v.(*goja.Object).Get("then"))
	onFulfilled := e.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		val, err := e.convert(call.Argument(0), t)
		done <- settlement{val: val, err: err}
		return goja.Undefined()
	})
	onRejected := e.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		done <- settlement{err: transcoder.FromRejection(call.Argument(0))}
		return goja.Undefined()
	})
	if _, err := then(v, onFulfilled, onRejected); err != nil {
		done <- settlement{err: transcoder.FromException(err)}
	}
}

func (e *Env) convert(v goja.Value, t *value.Type) (value.Value, error) {
	if t == nil {
		return value.Absent(), nil
	}
	return e.bridge.ToNative(v, t)
}

func asPromise(v goja.Value) (*goja.Promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	p, ok := obj.Export().(*goja.Promise)
	return p, ok
}
