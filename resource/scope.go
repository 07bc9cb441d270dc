package resource

// Scope owns the handles acquired during one boundary call. Closing the
// scope removes every handle that did not escape, on every exit path.
//
//	scope := table.NewScope()
//	defer scope.Close()
//	h := scope.Insert(resource.TypeHostRef, v)
//	...
//	scope.Escape(h) // keep h alive past the call
type Scope struct {
	table    *Table
	handles  []Handle
	deferred []func()
	closed   bool
}

// NewScope returns an empty scope bound to t.
func (t *Table) NewScope() *Scope {
	return &Scope{table: t, handles: make([]Handle, 0, 4)}
}

// Insert adds a value to the table and tracks the handle in the scope.
func (s *Scope) Insert(typeID TypeID, value any) Handle {
	h := s.table.Insert(typeID, value)
	if h != 0 {
		s.handles = append(s.handles, h)
	}
	return h
}

// Add tracks an existing handle.
func (s *Scope) Add(h Handle) {
	if h != 0 {
		s.handles = append(s.handles, h)
	}
}

// Escape stops tracking h so that it outlives the scope. It reports
// whether h was tracked.
func (s *Scope) Escape(h Handle) bool {
	for i, tracked := range s.handles {
		if tracked == h {
			s.handles = append(s.handles[:i], s.handles[i+1:]...)
			return true
		}
	}
	return false
}

// Defer registers fn to run when the scope closes. Deferred functions run
// in reverse order after the tracked handles are removed.
func (s *Scope) Defer(fn func()) {
	s.deferred = append(s.deferred, fn)
}

// Count returns the number of tracked handles.
func (s *Scope) Count() int {
	return len(s.handles)
}

// Close removes tracked handles and runs deferred functions. Close is
// idempotent.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for i := len(s.handles) - 1; i >= 0; i-- {
		s.table.Remove(s.handles[i])
	}
	for i := len(s.deferred) - 1; i >= 0; i-- {
		s.deferred[i]()
	}
	s.handles = nil
	s.deferred = nil
}
