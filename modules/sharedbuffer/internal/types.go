package internal

// Slot names one of the three rotating positions of the arena.
type Slot int

const (
	SlotProducer Slot = iota
	SlotConsumer
	SlotIntermediate

	slotCount = 3
)

// String returns the slot name.
func (s Slot) String() string {
	switch s {
	case SlotProducer:
		return "producer"
	case SlotConsumer:
		return "consumer"
	case SlotIntermediate:
		return "intermediate"
	default:
		return "unknown"
	}
}

// SlotTable maps each slot to the arena index it currently holds.
type SlotTable [slotCount]int

// Valid reports whether the table is a permutation of the arena indices:
// every slot holds exactly one buffer and no buffer is held twice.
func (t SlotTable) Valid() bool {
	var seen [slotCount]bool
	for _, idx := range t {
		if idx < 0 || idx >= slotCount || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

// Stats is a snapshot of exchange counters.
type Stats struct {
	// Produced counts SwapProducer calls.
	Produced uint64

	// Consumed counts SwapConsumer calls that picked up a frame.
	Consumed uint64

	// Dropped counts frames overwritten before the consumer picked them up.
	// Expected when the render goroutine is faster than the display tick.
	Dropped uint64

	// Idle counts SwapConsumer calls that found no new frame.
	Idle uint64

	// LastSeq is the sequence number of the newest completed frame.
	LastSeq uint64
}
