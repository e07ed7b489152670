package internal

import (
	"sync"
	"time"
)

// viewerSlot is a per-viewer mailbox: single frame, overwrite on publish,
// blocking read.
type viewerSlot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame

	lastReadAt       time.Time
	lastReadSeq      uint64
	consecutiveDrops uint64
	totalDrops       uint64

	closed bool
}

func newViewerSlot() *viewerSlot {
	slot := &viewerSlot{lastReadAt: time.Now()}
	slot.cond = sync.NewCond(&slot.mu)
	return slot
}

func (v *viewerSlot) publish(frame *Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	if v.frame != nil {
		v.consecutiveDrops++
		v.totalDrops++
	}
	v.frame = frame
	v.cond.Signal()
}

func (v *viewerSlot) read() *Frame {
	v.mu.Lock()
	defer v.mu.Unlock()

	for v.frame == nil && !v.closed {
		v.cond.Wait()
	}
	if v.closed {
		return nil
	}

	frame := v.frame
	v.frame = nil
	v.lastReadAt = time.Now()
	v.lastReadSeq = frame.Seq
	v.consecutiveDrops = 0
	return frame
}

func (v *viewerSlot) close() {
	v.mu.Lock()
	v.closed = true
	v.cond.Broadcast()
	v.mu.Unlock()
}

// Subscribe implements Supplier.Subscribe.
func (s *supplier) Subscribe(viewerID string) func() *Frame {
	if s.stopping.Load() {
		return func() *Frame { return nil }
	}

	slot := newViewerSlot()
	if old, loaded := s.slots.Swap(viewerID, slot); loaded {
		// Re-subscribing with the same id releases the previous reader.
		old.(*viewerSlot).close()
	}

	return slot.read
}

// Unsubscribe implements Supplier.Unsubscribe.
func (s *supplier) Unsubscribe(viewerID string) {
	val, ok := s.slots.LoadAndDelete(viewerID)
	if !ok {
		return
	}
	val.(*viewerSlot).close()
}
