package outputpad

import "time"

// EventType names something that happened to a pad
type EventType string

const (
	EventLinked            EventType = "linked"
	EventUnlinked          EventType = "unlinked"
	EventBound             EventType = "bound"
	EventUnbound           EventType = "unbound"
	EventActivated         EventType = "activated"
	EventDeactivated       EventType = "deactivated"
	EventClosed            EventType = "closed"
	EventNegotiated        EventType = "negotiated"
	EventNegotiationFailed EventType = "negotiation-failed"
	EventResized           EventType = "resized"
	EventBufferError       EventType = "buffer-error"
)

// Event is delivered to observers registered with WithObserver
type Event struct {
	Type   EventType `json:"type"`
	Pad    string    `json:"pad"`
	Reason string    `json:"reason,omitempty"`
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
}
