package transcoder

import (
	stderrors "errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
)

// NewError builds the host exception object for err. The object keeps err
// reachable so that FromException recovers it unchanged when the exception
// travels back into native code.
func (b *Bridge) NewError(err error) *goja.Object {
	obj := b.rt.NewGoError(err)
	kind := errors.KindOf(err)
	_ = obj.Set("name", kind.Name())
	_ = obj.Set("message", errors.Reason(err))
	if kind != "" {
		_ = obj.Set("code", string(kind))
	}
	return obj
}

// Throw raises err as a host exception. It must be called from inside a
// native function invoked by the host.
func (b *Bridge) Throw(err error) {
	b.logger.Debug("throwing host exception", zap.Error(err))
	panic(b.NewError(err))
}

// FromException converts an error returned by the host into a native error.
// Errors raised by native code are returned as they were thrown; any other
// exception becomes a NativeFailure whose reason is the exception message.
func FromException(err error) error {
	if err == nil {
		return nil
	}
	var ex *goja.Exception
	if !stderrors.As(err, &ex) {
		var intr *goja.InterruptedError
		if stderrors.As(err, &intr) {
			return errors.New(errors.PhaseCall, errors.KindNativeFailure).
				Detail("interrupted").
				Cause(err).
				Build()
		}
		return errors.New(errors.PhaseCall, errors.KindNativeFailure).
			Detail("%s", err.Error()).
			Cause(err).
			Build()
	}
	if inner := ex.Unwrap(); inner != nil {
		return inner
	}
	return errors.New(errors.PhaseCall, errors.KindNativeFailure).
		Detail("%s", exceptionMessage(ex)).
		Cause(err).
		Build()
}

func exceptionMessage(ex *goja.Exception) string {
	val := ex.Value()
	if obj, ok := val.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	if val == nil || goja.IsUndefined(val) {
		return ex.Error()
	}
	return val.String()
}

// FromRejection converts a promise rejection reason into a native error.
func FromRejection(reason goja.Value) error {
	if obj, ok := reason.(*goja.Object); ok {
		if val := obj.Get("value"); val != nil {
			if inner, ok := val.Export().(error); ok {
				return inner
			}
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return errors.NativeFailure(msg.String())
		}
	}
	if reason == nil || goja.IsUndefined(reason) {
		return errors.NativeFailure("promise rejected")
	}
	return errors.NativeFailure(reason.String())
}
