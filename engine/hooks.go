package engine

import (
	"go.uber.org/zap"
)

// HookID identifies a registered cleanup hook.
type HookID uint64

type cleanupHook struct {
	fn func()
	id HookID
}

// AddCleanupHook registers fn to run on the host thread when the
// environment closes. Hooks run in reverse registration order.
func (e *Env) AddCleanupHook(fn func()) HookID {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hookID++
	id := HookID(e.hookID)
	e.hooks = append(e.hooks, cleanupHook{fn: fn, id: id})
	return id
}

// RemoveCleanupHook unregisters a hook. It reports whether the hook was
// still registered.
func (e *Env) RemoveCleanupHook(id HookID) bool {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	for i, h := range e.hooks {
		if h.id == id {
			e.hooks = append(e.hooks[:i], e.hooks[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Env) runCleanupHooks() {
	e.hookMu.Lock()
	hooks := e.hooks
	e.hooks = nil
	e.hookMu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("cleanup hook panicked", zap.Any("panic", r), zap.Uint64("hook", uint64(hooks[i].id)))
				}
			}()
			hooks[i].fn()
		}()
	}
}

// SetInstanceData associates data with key for the lifetime of the
// environment. Modules use it to keep per-environment state such as
// registered classes.
func (e *Env) SetInstanceData(key, data any) {
	e.dataMu.Lock()
	defer e.dataMu.Unlock()
	e.data[key] = data
}

// InstanceData returns the data stored under key.
func (e *Env) InstanceData(key any) (any, bool) {
	e.dataMu.RLock()
	defer e.dataMu.RUnlock()
	v, ok := e.data[key]
	return v, ok
}
