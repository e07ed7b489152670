package internal

import "time"

// Stats is a snapshot of supplier operational state.
type Stats struct {
	// Published counts frames accepted by Publish.
	Published uint64

	// InboxDrops counts frames overwritten before the distribution loop took
	// them. Should stay near zero.
	InboxDrops uint64

	Viewers map[string]ViewerStats
}

// ViewerStats tracks one viewer's mailbox.
type ViewerStats struct {
	ViewerID string

	LastReadAt  time.Time
	LastReadSeq uint64

	// ConsecutiveDrops resets on every read.
	ConsecutiveDrops uint64
	TotalDrops       uint64

	// IsIdle is true when the viewer has not read for idleThreshold.
	IsIdle bool
}
