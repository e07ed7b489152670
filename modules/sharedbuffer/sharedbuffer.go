package sharedbuffer

import (
	"image"

	"github.com/e7canasta/filtershow/modules/sharedbuffer/internal"
)

// Buffer is re-exported from internal package.
// See internal/buffer.go for full documentation.
type Buffer = internal.Buffer

// Slot names one of the three rotating positions.
type Slot = internal.Slot

const (
	// Producer is the slot written by the render goroutine.
	Producer = internal.SlotProducer
	// Consumer is the slot read by the display goroutine.
	Consumer = internal.SlotConsumer
	// Intermediate holds the handoff frame between the two.
	Intermediate = internal.SlotIntermediate
)

// Stats is re-exported from internal package.
type Stats = internal.Stats

// SlotTable is re-exported from internal package.
type SlotTable = internal.SlotTable

// SharedBuffer is the public interface for the triple-buffer exchange.
//
// Lifecycle: New() → SetProducer/SwapProducer (render side) and
// SwapConsumer/Consumer (display side) → Reset() when the pipeline is disabled.
type SharedBuffer interface {
	// SetProducer wraps img as the producer buffer.
	// Returns the image previously held by the producer slot (may be nil)
	// so the caller can recycle it.
	SetProducer(img *image.RGBA) *image.RGBA

	// Producer returns the buffer currently in the producer slot.
	Producer() *Buffer

	// Consumer returns the buffer currently in the consumer slot.
	// Before the first successful SwapConsumer it holds no image.
	Consumer() *Buffer

	// SwapProducer synchronizes the producer buffer and exchanges it with the
	// intermediate slot, marking a fresh frame available.
	//
	// Never blocks waiting for the consumer. If the previous frame was never
	// picked up it is dropped (counted in Stats().Dropped).
	SwapProducer()

	// SwapConsumer picks up the newest completed frame.
	//
	// Returns false (no-op) when no new frame was produced since the last
	// successful call; the consumer keeps its current buffer.
	SwapConsumer() bool

	// Invalidate requests a redraw without a new frame.
	Invalidate()

	// CheckRepaintNeeded reports whether a redraw was requested and clears
	// the request (test-and-clear).
	CheckRepaintNeeded() bool

	// Stats returns a snapshot of exchange counters.
	Stats() Stats

	// Slots returns the arena index held by each slot.
	Slots() SlotTable

	// Reset drops all images and restores the initial slot layout.
	// Must not race with in-flight swaps (owner synchronizes shutdown).
	Reset()
}

// New creates a SharedBuffer with three empty buffers.
func New() SharedBuffer {
	return internal.NewSharedBuffer()
}
