// Package notifybus distributes save-request events (started, progress,
// completed, failed) to notification sinks.
//
// Unlike preview frames, events form a per-request story, so the bus keeps
// one global publish order and only progress events may be dropped:
//   - Channel subscribers: progress dropped when the channel is full;
//     started/terminal events wait up to the delivery timeout
//   - Latest subscribers: always hold the newest event (status polling)
//
// Usage:
//
//	bus := notifybus.New(0)
//	defer bus.Close()
//
//	ch := make(chan notifybus.Event, 16)
//	bus.Subscribe("mqtt", ch)
//
//	bus.Publish(notifybus.Event{Kind: notifybus.KindProgress, Current: 2, Max: 6})
package notifybus

import (
	"time"

	"github.com/e7canasta/filtershow/modules/notifybus/internal/bus"
)

// Kind classifies an event.
type Kind = bus.Kind

const (
	KindStarted   = bus.KindStarted
	KindProgress  = bus.KindProgress
	KindCompleted = bus.KindCompleted
	KindFailed    = bus.KindFailed
)

// Event is one notification about a save request.
type Event = bus.Event

// Receiver provides latest-only access to events.
type Receiver = bus.Receiver

// SubscriberStats tracks delivery metrics for one subscriber.
type SubscriberStats = bus.SubscriberStats

// BusStats is a snapshot of the whole bus.
type BusStats = bus.BusStats

// Bus distributes events to subscribers in publish order.
type Bus = bus.Bus

// DefaultDeliveryTimeout is used when New receives a non-positive timeout.
const DefaultDeliveryTimeout = bus.DefaultDeliveryTimeout

var (
	ErrBusClosed          = bus.ErrBusClosed
	ErrSubscriberExists   = bus.ErrSubscriberExists
	ErrSubscriberNotFound = bus.ErrSubscriberNotFound
	ErrNilChannel         = bus.ErrNilChannel
	ErrReceiverClosed     = bus.ErrReceiverClosed
)

// New creates a bus.
func New(deliveryTimeout time.Duration) Bus {
	return bus.New(deliveryTimeout)
}

// DropRate returns dropped/(sent+dropped) for a subscriber, 0 when unknown.
func DropRate(stats BusStats, subscriberID string) float64 {
	sub, ok := stats.Subscribers[subscriberID]
	if !ok {
		return 0
	}
	total := sub.Sent + sub.Dropped
	if total == 0 {
		return 0
	}
	return float64(sub.Dropped) / float64(total)
}
