package resource

// Handle is an opaque reference to a tracked value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// TypeID tags what kind of value a handle tracks.
type TypeID uint32

// Event types for lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about lifecycle events.
// Observers may be called from any goroutine, including the Go cleanup
// goroutine, and must not call back into the table. Unsubscribe finds an
// observer by ==, so implementations should be pointers.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is implemented by tracked values that need cleanup when the
// table drops them. Drop must be idempotent: a value may release itself
// and be dropped by the table concurrently.
type Dropper interface {
	Drop()
}
