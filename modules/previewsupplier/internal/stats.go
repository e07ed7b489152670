package internal

import (
	"sync/atomic"
	"time"
)

// idleThreshold marks a viewer idle. A live MJPEG client reads every display
// tick, so half a minute without a read means the connection is stuck.
const idleThreshold = 30 * time.Second

// Stats implements Supplier.Stats.
func (s *supplier) Stats() Stats {
	viewers := make(map[string]ViewerStats)

	s.slots.Range(func(key, value interface{}) bool {
		id := key.(string)
		slot := value.(*viewerSlot)

		slot.mu.Lock()
		viewers[id] = ViewerStats{
			ViewerID:         id,
			LastReadAt:       slot.lastReadAt,
			LastReadSeq:      slot.lastReadSeq,
			ConsecutiveDrops: slot.consecutiveDrops,
			TotalDrops:       slot.totalDrops,
			IsIdle:           time.Since(slot.lastReadAt) > idleThreshold,
		}
		slot.mu.Unlock()
		return true
	})

	return Stats{
		Published:  atomic.LoadUint64(&s.published),
		InboxDrops: atomic.LoadUint64(&s.inboxDrops),
		Viewers:    viewers,
	}
}
