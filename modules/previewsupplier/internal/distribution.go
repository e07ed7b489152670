package internal

import "sync/atomic"

// publishBatchSize is the viewer count above which fan-out is split across
// goroutines. Sequential fan-out is a handful of lock/assign/signal steps per
// viewer; spawning only pays off for many concurrent viewers.
const publishBatchSize = 8

// distributeToViewers stamps the frame and delivers it to every slot.
//
// Called only by distributionLoop. Batch goroutines are fire-and-forget: the
// next preview arrives one display tick later, long after fan-out completes.
func (s *supplier) distributeToViewers(frame *Frame) {
	frame.Seq = atomic.AddUint64(&s.distributeSeq, 1)
	s.latest.Store(frame)

	var slots []*viewerSlot
	s.slots.Range(func(_, value interface{}) bool {
		slots = append(slots, value.(*viewerSlot))
		return true
	})

	if len(slots) <= publishBatchSize {
		for _, slot := range slots {
			slot.publish(frame)
		}
		return
	}

	for i := 0; i < len(slots); i += publishBatchSize {
		end := i + publishBatchSize
		if end > len(slots) {
			end = len(slots)
		}
		go func(batch []*viewerSlot) {
			for _, slot := range batch {
				slot.publish(frame)
			}
		}(slots[i:end])
	}
}
