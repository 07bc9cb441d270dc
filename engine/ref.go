package engine

import (
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// Ref keeps a host value reachable beyond the call that produced it.
// The value can only be read on the host thread; Release may be called
// from any goroutine.
type Ref struct {
	env      *Env
	val      goja.Value
	handle   resource.Handle
	released atomic.Bool
}

// NewRef pins v in the handle table. It must be called on the host thread.
func (e *Env) NewRef(v goja.Value) (*Ref, error) {
	if !e.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseHost, "NewRef")
	}
	h := e.table.Insert(resource.TypeHostRef, v)
	if h == 0 {
		return nil, errors.Closed(errors.PhaseHost, "environment")
	}
	return &Ref{env: e, val: v, handle: h}, nil
}

// Value returns the referenced host value.
func (r *Ref) Value() (goja.Value, error) {
	if r.released.Load() {
		return nil, errors.Released(errors.PhaseHost, "host reference")
	}
	if !r.env.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseHost, "Ref.Value")
	}
	return r.val, nil
}

// Handle returns the table handle pinning the value.
func (r *Ref) Handle() resource.Handle {
	return r.handle
}

// Release unpins the value. Release is idempotent.
func (r *Ref) Release() {
	if r.released.Swap(true) {
		return
	}
	r.env.table.Remove(r.handle)
}
