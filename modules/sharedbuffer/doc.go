// Package sharedbuffer implements the triple-buffered handoff between the
// filter render goroutine (producer) and the display goroutine (consumer).
//
// # Philosophy
//
// "Freshness over completeness."
//
// The producer never waits for the consumer and the consumer never waits for
// the producer. When the producer outruns the display, intermediate frames are
// silently skipped: the display always picks up the newest completed frame.
//
// # Architecture
//
// Three Buffer objects live in a fixed arena. Three named slots point into the
// arena and rotate on every exchange:
//
//	render goroutine → [Producer] ⇄ [Intermediate] ⇄ [Consumer] → display goroutine
//	                   SwapProducer                SwapConsumer
//
// The arena never changes: at any instant each buffer occupies exactly one
// slot. Only the slot table is rewritten, under a single mutex.
//
// # Basic Usage
//
// Producer side:
//
//	sb := sharedbuffer.New()
//	for preview := range renders {
//	    sb.SetProducer(preview)
//	    sb.SwapProducer() // never blocks on the display
//	}
//
// Consumer side:
//
//	for range ticker.C {
//	    fresh := sb.SwapConsumer() // false = no new frame, keep showing the old one
//	    if fresh || sb.CheckRepaintNeeded() {
//	        draw(sb.Consumer().Image())
//	    }
//	}
//
// # Repaint Flag
//
// Invalidate() and CheckRepaintNeeded() form an independent "force redraw"
// signal with test-and-clear semantics. The flag starts set, so the first
// display tick always draws.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Each call is a single critical
// section; slot pointers are never observed half-swapped.
//
// The image held by the producer slot belongs to the producer goroutine until
// SwapProducer. The image held by the consumer slot belongs to the display
// goroutine until its next successful SwapConsumer.
//
// # Failure Semantics
//
// None of the operations fail. "No new data" is a normal outcome reported by
// the boolean result of SwapConsumer.
package sharedbuffer
