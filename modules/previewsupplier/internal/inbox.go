package internal

import "sync/atomic"

// Publish implements Supplier.Publish.
//
// Lock, overwrite the inbox frame (counting a drop if the previous one was
// never distributed), signal the loop. Never blocks on viewers.
func (s *supplier) Publish(frame *Frame) {
	if frame == nil || s.stopping.Load() {
		return
	}

	s.inboxMu.Lock()

	if s.inboxFrame != nil {
		atomic.AddUint64(&s.inboxDrops, 1)
	}
	s.inboxFrame = frame
	atomic.AddUint64(&s.published, 1)

	s.inboxCond.Signal()
	s.inboxMu.Unlock()
}

// Latest implements Supplier.Latest.
func (s *supplier) Latest() *Frame {
	return s.latest.Load()
}
