package bus

import (
	"errors"
	"time"
)

// Internal errors - mapped to public errors in notifybus package
var (
	ErrBusClosed          = errors.New("notifybus: bus is closed")
	ErrSubscriberExists   = errors.New("notifybus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("notifybus: subscriber not found")
	ErrNilChannel         = errors.New("notifybus: nil channel provided")
	ErrReceiverClosed     = errors.New("notifybus: receiver is closed")
)

// Kind classifies a processing event.
type Kind int

const (
	KindStarted Kind = iota
	KindProgress
	KindCompleted
	KindFailed
)

// String returns the kind name used on the wire.
func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindProgress:
		return "progress"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one notification about a save request.
type Event struct {
	Kind Kind `json:"-"`

	RequestID      string `json:"request_id"`
	NotificationID int    `json:"notification_id"`

	// Current/Max are progress steps (Max = total steps).
	Current int `json:"current"`
	Max     int `json:"max"`

	// Result is the saved location (KindCompleted).
	Result string `json:"result,omitempty"`
	// Error is the failure reason (KindFailed).
	Error string `json:"error,omitempty"`
	// Thumbnail is a small JPEG of the image being saved, attached to one
	// progress event per request.
	Thumbnail []byte `json:"thumbnail,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Seq is assigned by the bus. Monotonic across all events.
	Seq uint64 `json:"seq"`
}

// Terminal reports whether the event ends a request's stream.
// Started and terminal events are never dropped for a full subscriber.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

func (e Event) droppable() bool {
	return e.Kind == KindProgress
}

// Receiver gives latest-only access to events.
type Receiver interface {
	// Receive blocks until an event newer than the last one received is
	// available. Returns false when the receiver is closed.
	Receive() (Event, bool)
	// TryReceive returns the latest event without blocking.
	TryReceive() (Event, bool)
	Close()
}

// SubscriberStats tracks delivery to one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
	// TimedOut counts must-deliver events abandoned after the delivery timeout.
	TimedOut uint64
}

// BusStats is a snapshot across all subscribers.
type BusStats struct {
	TotalPublished uint64
	Subscribers    map[string]SubscriberStats
}

// Bus fans events out to subscribers in publish order.
type Bus interface {
	Subscribe(id string, ch chan<- Event) error
	SubscribeLatest(id string) (Receiver, error)
	Publish(ev Event)
	Unsubscribe(id string) error
	Stats() BusStats
	Close()
}
