package resource

import (
	"errors"
	"sync"

	"code.hybscloud.com/atomix"
)

// ErrInvalidHandle is returned when a handle does not name a live value.
var ErrInvalidHandle = errors.New("invalid handle")

// Table maps handles to native values with type tags, lifecycle observers
// and accounting. It is safe for concurrent use.
type Table struct {
	backend   Backend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex

	created  atomix.Uint64
	dropped  atomix.Uint64
	external atomix.Int64
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return NewTableWithBackend(NewLocalBackend())
}

// NewTableWithBackend creates a table storing handles in b.
func NewTableWithBackend(b Backend) *Table {
	return &Table{backend: b}
}

// Insert adds a value and returns its handle, or 0 if the table is closed.
func (t *Table) Insert(typeID TypeID, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		return 0
	}
	t.created.Add(1)

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *Table) GetTyped(handle Handle, typeID TypeID) (any, bool) {
	actual, ok := t.backend.TypeID(handle)
	if !ok || actual != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Remove drops a handle and returns (value, true) if found and not borrowed.
// Values implementing Dropper are dropped.
func (t *Table) Remove(handle Handle) (any, bool) {
	typeID, _ := t.backend.TypeID(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}
	t.dropped.Add(1)

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return value, true
}

// Release is Remove reporting why a handle could not be dropped.
func (t *Table) Release(handle Handle) error {
	if _, ok := t.Remove(handle); ok {
		return nil
	}
	if t.backend.Borrowed(handle) {
		return ErrOutstandingBorrow
	}
	return ErrInvalidHandle
}

// Borrow pins a handle for the duration of a call. A borrowed handle
// cannot be removed until every borrow is returned.
func (t *Table) Borrow(handle Handle) bool {
	if !t.backend.Borrow(handle) {
		return false
	}
	typeID, _ := t.backend.TypeID(handle)
	t.notify(Event{Type: EventBorrowed, Handle: handle, TypeID: typeID})
	return true
}

// ReturnBorrow releases one pin taken by Borrow.
func (t *Table) ReturnBorrow(handle Handle) bool {
	if !t.backend.ReturnBorrow(handle) {
		return false
	}
	typeID, _ := t.backend.TypeID(handle)
	t.notify(Event{Type: EventBorrowReturned, Handle: handle, TypeID: typeID})
	return true
}

// AdjustExternal records bytes of native memory kept alive by host objects
// and returns the new total. Pass a negative delta when memory is released.
func (t *Table) AdjustExternal(delta int64) int64 {
	return t.external.Add(delta)
}

// Stats returns a snapshot of the table accounting.
func (t *Table) Stats() Stats {
	return Stats{
		Live:          t.backend.Len(),
		Created:       t.created.Load(),
		Dropped:       t.dropped.Load(),
		ExternalBytes: t.external.Load(),
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Count returns the number of live handles of one type.
func (t *Table) Count(typeID TypeID) int {
	n := 0
	t.backend.Each(func(_ Handle, id TypeID, _ any) bool {
		if id == typeID {
			n++
		}
		return true
	})
	return n
}

// Clear drops all handles that are not borrowed.
func (t *Table) Clear() {
	// collect first; Remove takes the backend lock
	var handles []Handle
	t.backend.Each(func(h Handle, _ TypeID, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all values and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
