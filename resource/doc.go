// Package resource tracks native objects that the host holds on to.
//
// Host objects cannot hold Go pointers directly, so every native value that
// outlives a single boundary call lives in a Table under an integer Handle:
// class instance state, host values escaping their call, native memory
// regions, in-flight async tasks and thread-safe callbacks.
//
//	table := resource.NewTable()
//	h := table.Insert(resource.TypeInstance, state)
//	v, ok := table.GetTyped(h, resource.TypeInstance)
//	table.Remove(h)
//
// # Scopes
//
// A Scope collects handles acquired during one call and removes them when
// the call returns, whether it succeeded or raised:
//
//	scope := table.NewScope()
//	defer scope.Close()
//
// Handles that must outlive the call are passed to Scope.Escape.
//
// # Borrows
//
// Borrow pins a handle while native code uses it. Remove refuses to drop a
// borrowed handle, so an instance cannot be destroyed in the middle of one
// of its own method calls.
//
// # Accounting
//
// Stats reports live handles, lifetime create/drop counts and the bytes of
// native memory kept alive by host objects (see AdjustExternal).
//
// Values implementing Dropper are dropped when their handle is removed and
// when the table closes.
package resource
