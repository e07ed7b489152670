// Package internal implements the triple-buffer exchange.
//
// This package is INTERNAL - clients MUST use public API in parent package.
package internal

import (
	"image"
	"sync"
)

// sharedBuffer is the concrete implementation of sharedbuffer.SharedBuffer.
//
// The arena never changes after construction. Every operation that reads or
// rewrites the slot table does so inside mu, so a half-swapped table is never
// observable.
type sharedBuffer struct {
	mu sync.Mutex

	arena [slotCount]*Buffer
	slots SlotTable

	needsSwap    bool // fresh frame waiting in the intermediate slot
	needsRepaint bool // display must redraw even without a new frame

	seq   uint64
	stats Stats
}

// NewSharedBuffer creates the arena (called by public New()).
func NewSharedBuffer() *sharedBuffer {
	sb := &sharedBuffer{}
	for i := range sb.arena {
		sb.arena[i] = newBuffer(i)
	}
	sb.resetLocked()
	return sb
}

func (sb *sharedBuffer) resetLocked() {
	sb.slots = SlotTable{
		SlotProducer:     0,
		SlotConsumer:     1,
		SlotIntermediate: 2,
	}
	sb.needsSwap = false
	sb.needsRepaint = true
}

func (sb *sharedBuffer) at(s Slot) *Buffer {
	return sb.arena[sb.slots[s]]
}

func (sb *sharedBuffer) exchange(a, b Slot) {
	sb.slots[a], sb.slots[b] = sb.slots[b], sb.slots[a]
}

// SetProducer implements SharedBuffer.SetProducer.
func (sb *sharedBuffer) SetProducer(img *image.RGBA) *image.RGBA {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.at(SlotProducer).set(img)
}

// Producer implements SharedBuffer.Producer.
func (sb *sharedBuffer) Producer() *Buffer {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.at(SlotProducer)
}

// Consumer implements SharedBuffer.Consumer.
func (sb *sharedBuffer) Consumer() *Buffer {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.at(SlotConsumer)
}

// SwapProducer implements SharedBuffer.SwapProducer.
//
// Algorithm:
//  1. Sync producer buffer (writes complete)
//  2. Stamp it with the next sequence number
//  3. If a frame was still waiting in intermediate, count it dropped
//  4. Exchange producer ↔ intermediate, set dirty flag
func (sb *sharedBuffer) SwapProducer() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	producer := sb.at(SlotProducer)
	producer.Sync()

	sb.seq++
	producer.stamp(sb.seq)

	if sb.needsSwap {
		// Previous frame never reached the display (freshness over completeness)
		sb.stats.Dropped++
	}

	sb.exchange(SlotProducer, SlotIntermediate)
	sb.needsSwap = true

	sb.stats.Produced++
	sb.stats.LastSeq = sb.seq
}

// SwapConsumer implements SharedBuffer.SwapConsumer.
func (sb *sharedBuffer) SwapConsumer() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.needsSwap {
		sb.stats.Idle++
		return false
	}

	sb.at(SlotConsumer).Sync()
	sb.exchange(SlotConsumer, SlotIntermediate)
	sb.needsSwap = false

	sb.stats.Consumed++
	return true
}

// Invalidate implements SharedBuffer.Invalidate.
func (sb *sharedBuffer) Invalidate() {
	sb.mu.Lock()
	sb.needsRepaint = true
	sb.mu.Unlock()
}

// CheckRepaintNeeded implements SharedBuffer.CheckRepaintNeeded.
func (sb *sharedBuffer) CheckRepaintNeeded() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.needsRepaint {
		sb.needsRepaint = false
		return true
	}
	return false
}

// Stats implements SharedBuffer.Stats.
func (sb *sharedBuffer) Stats() Stats {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.stats
}

// Slots implements SharedBuffer.Slots.
func (sb *sharedBuffer) Slots() SlotTable {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.slots
}

// Reset implements SharedBuffer.Reset.
func (sb *sharedBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, b := range sb.arena {
		b.clear()
	}
	sb.resetLocked()
}
