package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDeliveryTimeout bounds how long Publish waits on a full subscriber
// channel for a must-deliver event.
const DefaultDeliveryTimeout = 5 * time.Second

type subscriberHolder struct {
	id    string
	stats *SubscriberStats

	// Channel subscriber
	ch chan<- Event

	// Latest-only subscriber
	holder *latestEventHolder
}

type bus struct {
	// publishMu serializes Publish so every subscriber sees one global order.
	publishMu sync.Mutex

	mu             sync.RWMutex
	subscribers    map[string]*subscriberHolder
	totalPublished uint64
	seq            uint64
	closed         bool

	deliveryTimeout time.Duration
}

// New creates a bus. A non-positive timeout selects DefaultDeliveryTimeout.
func New(deliveryTimeout time.Duration) Bus {
	if deliveryTimeout <= 0 {
		deliveryTimeout = DefaultDeliveryTimeout
	}
	return &bus{
		subscribers:     make(map[string]*subscriberHolder),
		deliveryTimeout: deliveryTimeout,
	}
}

// Subscribe registers a channel subscriber.
func (b *bus) Subscribe(id string, ch chan<- Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subscribers[id] = &subscriberHolder{
		id:    id,
		stats: &SubscriberStats{},
		ch:    ch,
	}
	return nil
}

// SubscribeLatest registers a latest-only subscriber.
func (b *bus) SubscribeLatest(id string) (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	holder := &subscriberHolder{
		id:     id,
		stats:  &SubscriberStats{},
		holder: newLatestEventHolder(),
	}
	b.subscribers[id] = holder
	return holder.holder, nil
}

// Publish delivers ev to every subscriber.
//
// Progress events are dropped for a full channel. Started and terminal events
// wait up to the delivery timeout.
func (b *bus) Publish(ev Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.seq++
	ev.Seq = b.seq
	atomic.AddUint64(&b.totalPublished, 1)

	holders := make([]*subscriberHolder, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		holders = append(holders, h)
	}
	b.mu.RUnlock()

	for _, h := range holders {
		if h.holder != nil {
			if h.holder.Set(ev) == nil {
				atomic.AddUint64(&h.stats.Sent, 1)
			}
			continue
		}
		b.send(h, ev)
	}
}

func (b *bus) send(h *subscriberHolder, ev Event) {
	select {
	case h.ch <- ev:
		atomic.AddUint64(&h.stats.Sent, 1)
		return
	default:
	}

	if ev.droppable() {
		atomic.AddUint64(&h.stats.Dropped, 1)
		return
	}

	timer := time.NewTimer(b.deliveryTimeout)
	defer timer.Stop()

	select {
	case h.ch <- ev:
		atomic.AddUint64(&h.stats.Sent, 1)
	case <-timer.C:
		atomic.AddUint64(&h.stats.TimedOut, 1)
	}
}

// Unsubscribe removes a subscriber.
//
// Waits for an in-flight Publish, so no event reaches the subscriber after
// Unsubscribe returns.
func (b *bus) Unsubscribe(id string) error {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	holder, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if holder.holder != nil {
		holder.holder.Close()
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns a snapshot.
func (b *bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := make(map[string]SubscriberStats, len(b.subscribers))
	for id, h := range b.subscribers {
		subs[id] = SubscriberStats{
			Sent:     atomic.LoadUint64(&h.stats.Sent),
			Dropped:  atomic.LoadUint64(&h.stats.Dropped),
			TimedOut: atomic.LoadUint64(&h.stats.TimedOut),
		}
	}
	return BusStats{
		TotalPublished: atomic.LoadUint64(&b.totalPublished),
		Subscribers:    subs,
	}
}

// Close shuts the bus down and closes latest-only receivers.
// Channel subscribers own their channels and are not closed.
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, h := range b.subscribers {
		if h.holder != nil {
			h.holder.Close()
		}
	}
	b.subscribers = nil
}

// latestEventHolder implements Receiver.
type latestEventHolder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	event  *Event
	seen   uint64 // Seq of the last event returned by Receive
	closed bool
}

func newLatestEventHolder() *latestEventHolder {
	h := &latestEventHolder{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *latestEventHolder) Set(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrReceiverClosed
	}
	h.event = &ev
	h.cond.Broadcast()
	return nil
}

func (h *latestEventHolder) Receive() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for (h.event == nil || h.event.Seq == h.seen) && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		return Event{}, false
	}
	h.seen = h.event.Seq
	return *h.event, true
}

func (h *latestEventHolder) TryReceive() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.event == nil {
		return Event{}, false
	}
	return *h.event, true
}

func (h *latestEventHolder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
