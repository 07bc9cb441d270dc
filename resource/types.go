package resource

// Handle is an opaque reference to a native object held on behalf of the host.
// Handle 0 is reserved and always invalid.
type Handle uint32

// TypeID tags what kind of object a handle refers to.
type TypeID uint32

const (
	TypeInstance TypeID = iota + 1 // class instance state
	TypeHostRef                    // host value escaping its call
	TypeRegion                     // native memory region
	TypeTask                       // async task in flight
	TypeCallback                   // thread-safe callback
)

func (t TypeID) String() string {
	switch t {
	case TypeInstance:
		return "instance"
	case TypeHostRef:
		return "host_ref"
	case TypeRegion:
		return "region"
	case TypeTask:
		return "task"
	case TypeCallback:
		return "callback"
	}
	return "unknown"
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage for handles.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(typeID TypeID, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a handle and returns (value, true) if its value should be released.
	// Returns (nil, false) if the handle is invalid or has outstanding borrows.
	Drop(handle Handle) (any, bool)

	// Borrow pins a handle so that it cannot be dropped until returned.
	Borrow(handle Handle) bool

	// ReturnBorrow releases one pin.
	ReturnBorrow(handle Handle) bool

	// Borrowed reports whether a handle has outstanding borrows.
	Borrowed(handle Handle) bool

	// TypeID returns the type tag of a live handle.
	TypeID(handle Handle) (TypeID, bool)

	// Len returns the number of live handles.
	Len() int

	// Each calls fn for every live handle until fn returns false.
	Each(fn func(Handle, TypeID, any) bool)

	// Close releases all values held by the backend.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup when
// their handle is dropped.
type Dropper interface {
	Drop()
}

// Stats is a snapshot of table accounting.
type Stats struct {
	Live          int
	Created       uint64
	Dropped       uint64
	ExternalBytes int64
}
