package resource

import "context"

// Slot is an opaque reference to a live entry in a table.
// Slot 0 is reserved and always invalid.
type Slot uint32

// TypeID identifies what kind of native resource an entry guards.
type TypeID uint32

const (
	TypePuppet TypeID = iota + 1
	TypeScene
)

func (t TypeID) String() string {
	switch t {
	case TypePuppet:
		return "puppet"
	case TypeScene:
		return "scene"
	default:
		return "unknown"
	}
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	if t == EventCreated {
		return "created"
	}
	return "dropped"
}

// Event represents a resource lifecycle event.
type Event struct {
	Value any
	// Err is the error returned by Release for EventDropped, if any.
	Err    error
	Slot   Slot
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnResourceEvent implements Observer.
func (f ObserverFunc) OnResourceEvent(e Event) {
	f(e)
}

// Releaser is implemented by values that own a native resource.
// Release is called exactly once, when the entry leaves the table.
type Releaser interface {
	Release(ctx context.Context) error
}
