package push

import "github.com/scfet/notification-client/internal/model"

// State is the subscription state of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// EventKind discriminates Event.
type EventKind int

const (
	EventReceived EventKind = iota + 1
	EventRemoved
	EventReadStateChanged
	EventUpdated
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventReceived:
		return "received"
	case EventRemoved:
		return "removed"
	case EventReadStateChanged:
		return "read"
	case EventUpdated:
		return "updated"
	case EventStateChanged:
		return "state"
	default:
		return "unknown"
	}
}

// Event is one item of the Channel's ordered stream.
//
// Received and Updated carry Notification; Removed and ReadStateChanged
// carry ID; StateChanged carries State and, for failures, Err.
type Event struct {
	Kind         EventKind
	Notification model.Notification
	ID           string
	State        State
	Err          error

	// Generation identifies the Connect call that produced the event.
	Generation uint64
}
