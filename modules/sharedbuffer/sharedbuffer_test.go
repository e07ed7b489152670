package sharedbuffer_test

import (
	"encoding/binary"
	"image"
	"sync"
	"testing"

	"github.com/e7canasta/filtershow/modules/sharedbuffer"
)

// frame builds a tiny image tagged with n in its first 8 bytes.
func frame(n uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	binary.BigEndian.PutUint64(img.Pix[:8], n)
	return img
}

func tag(img *image.RGBA) uint64 {
	return binary.BigEndian.Uint64(img.Pix[:8])
}

// --- Test 1: Scenario A / B / C ---

// TestSwapScenario walks the reference exchange sequence.
//
// Scenario:
//  1. Producer sets A, swaps; consumer swaps → holds A
//  2. Producer sets B, swaps; sets C, swaps; consumer swaps → holds C (B skipped)
//  3. Consumer swaps again → no-op, still holds C
func TestSwapScenario(t *testing.T) {
	sb := sharedbuffer.New()

	a, b, c := frame(1), frame(2), frame(3)

	sb.SetProducer(a)
	sb.SwapProducer()
	if !sb.SwapConsumer() {
		t.Fatal("SwapConsumer() = false after SwapProducer (expected new frame)")
	}
	if got := sb.Consumer().Image(); got != a {
		t.Fatalf("consumer holds %v, expected frame A", got)
	}

	sb.SetProducer(b)
	sb.SwapProducer()
	sb.SetProducer(c)
	sb.SwapProducer()

	if !sb.SwapConsumer() {
		t.Fatal("SwapConsumer() = false after two producer swaps")
	}
	if got := sb.Consumer().Image(); got != c {
		t.Fatalf("consumer holds frame %d, expected C (3)", tag(got))
	}

	if sb.SwapConsumer() {
		t.Error("second SwapConsumer() = true (expected no-op)")
	}
	if got := sb.Consumer().Image(); got != c {
		t.Errorf("consumer changed after no-op swap: frame %d", tag(got))
	}

	stats := sb.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Dropped=%d (expected 1, frame B skipped)", stats.Dropped)
	}
	if stats.Produced != 3 || stats.Consumed != 2 {
		t.Errorf("Produced=%d Consumed=%d (expected 3, 2)", stats.Produced, stats.Consumed)
	}

	t.Logf("✅ scenario A/B/C: %+v", stats)
}

// TestSwapConsumerWithoutProducer validates the "no new data" outcome.
func TestSwapConsumerWithoutProducer(t *testing.T) {
	sb := sharedbuffer.New()

	before := sb.Consumer()
	if sb.SwapConsumer() {
		t.Fatal("SwapConsumer() = true with no producer swap")
	}
	if after := sb.Consumer(); after != before {
		t.Errorf("consumer buffer changed: id %d → %d", before.ID(), after.ID())
	}
	if before.Image() != nil {
		t.Error("consumer holds an image before any frame was produced")
	}
	if sb.Stats().Idle != 1 {
		t.Errorf("Idle=%d (expected 1)", sb.Stats().Idle)
	}
}

// TestLatestFrameWins validates the freshness property: two producer swaps
// without a consumer swap deliver only the second frame.
func TestLatestFrameWins(t *testing.T) {
	sb := sharedbuffer.New()

	first, second := frame(10), frame(20)
	sb.SetProducer(first)
	sb.SwapProducer()
	sb.SetProducer(second)
	sb.SwapProducer()

	if !sb.SwapConsumer() {
		t.Fatal("SwapConsumer() = false")
	}
	if got := sb.Consumer().Image(); got != second {
		t.Fatalf("consumer holds frame %d, expected 20", tag(got))
	}
	if seq := sb.Consumer().Seq(); seq != 2 {
		t.Errorf("consumer Seq=%d (expected 2)", seq)
	}
}

// TestRepaintTestAndClear validates Invalidate / CheckRepaintNeeded.
func TestRepaintTestAndClear(t *testing.T) {
	sb := sharedbuffer.New()

	// Flag starts set so the first display tick draws.
	if !sb.CheckRepaintNeeded() {
		t.Error("initial CheckRepaintNeeded() = false (expected true)")
	}
	if sb.CheckRepaintNeeded() {
		t.Error("CheckRepaintNeeded() = true twice without Invalidate")
	}

	sb.Invalidate()
	if !sb.CheckRepaintNeeded() {
		t.Fatal("CheckRepaintNeeded() = false after Invalidate")
	}
	for i := 0; i < 3; i++ {
		if sb.CheckRepaintNeeded() {
			t.Fatalf("CheckRepaintNeeded() = true on read %d after clear", i+2)
		}
	}

	// Buffer rotation does not touch the repaint flag.
	sb.SetProducer(frame(1))
	sb.SwapProducer()
	sb.SwapConsumer()
	if sb.CheckRepaintNeeded() {
		t.Error("swap set the repaint flag")
	}
}

// TestSetProducerReturnsPrevious validates that the replaced image is handed back.
func TestSetProducerReturnsPrevious(t *testing.T) {
	sb := sharedbuffer.New()

	a, b := frame(1), frame(2)
	if old := sb.SetProducer(a); old != nil {
		t.Errorf("first SetProducer returned %v (expected nil)", old)
	}
	if old := sb.SetProducer(b); old != a {
		t.Error("SetProducer did not return the replaced image")
	}
	if sb.Producer().Image() != b {
		t.Error("producer slot does not hold the latest image")
	}
}

// TestReset validates teardown restores the initial layout.
func TestReset(t *testing.T) {
	sb := sharedbuffer.New()
	sb.SetProducer(frame(1))
	sb.SwapProducer()
	sb.SwapConsumer()
	sb.CheckRepaintNeeded()

	sb.Reset()

	if sb.SwapConsumer() {
		t.Error("SwapConsumer() = true after Reset")
	}
	if sb.Consumer().Image() != nil {
		t.Error("consumer still holds an image after Reset")
	}
	if !sb.CheckRepaintNeeded() {
		t.Error("repaint flag not restored by Reset")
	}
	want := sharedbuffer.SlotTable{0, 1, 2}
	if got := sb.Slots(); got != want {
		t.Errorf("Slots()=%v after Reset (expected %v)", got, want)
	}
}

// --- Test 2: Concurrent producer / consumer ---

// TestConcurrentSwaps hammers the exchange from two goroutines.
//
// Contract:
//   - Slot table is always a permutation of the arena (no duplication, no loss)
//   - Consumer sequence strictly increases on every successful swap
//   - Consumer never receives a frame older than the newest one completed
//     before its call
//   - Image content matches the sequence it was stamped with
func TestConcurrentSwaps(t *testing.T) {
	const frames = 5000

	sb := sharedbuffer.New()

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := uint64(1); i <= frames; i++ {
			sb.SetProducer(frame(i))
			sb.SwapProducer()
		}
	}()

	var (
		lastSeq  uint64
		received int
		failures int
	)

	consume := func() {
		newest := sb.Stats().LastSeq
		if !sb.SwapConsumer() {
			return
		}
		buf := sb.Consumer()
		seq := buf.Seq()
		if seq < newest {
			failures++
			t.Errorf("consumer got seq %d, newest completed before call was %d", seq, newest)
		}
		if seq <= lastSeq {
			failures++
			t.Errorf("consumer seq went backwards: %d after %d", seq, lastSeq)
		}
		if img := buf.Image(); img == nil || tag(img) != seq {
			failures++
			t.Errorf("buffer seq %d carries wrong image", seq)
		}
		lastSeq = seq
		received++
	}

loop:
	for failures < 10 {
		select {
		case <-done:
			break loop
		default:
		}
		consume()
		if slots := sb.Slots(); !slots.Valid() {
			t.Fatalf("slot table corrupted: %v", slots)
		}
	}
	wg.Wait()
	consume()

	if lastSeq != frames {
		t.Errorf("final consumer seq=%d (expected %d)", lastSeq, frames)
	}

	stats := sb.Stats()
	if stats.Produced != frames {
		t.Errorf("Produced=%d (expected %d)", stats.Produced, frames)
	}
	if stats.Consumed+stats.Dropped != frames {
		t.Errorf("Consumed(%d)+Dropped(%d) != %d", stats.Consumed, stats.Dropped, frames)
	}

	if sb.Producer().ID() == sb.Consumer().ID() {
		t.Error("producer and consumer share a buffer")
	}

	t.Logf("✅ %d frames produced, %d received, %d dropped", frames, received, stats.Dropped)
}
