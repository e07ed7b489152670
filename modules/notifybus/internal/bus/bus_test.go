package bus

import (
	"testing"
	"time"
)

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	b := New(0)
	defer b.Close()

	ch := make(chan Event, 4)
	if err := b.Subscribe("sink", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Publish(Event{Kind: KindStarted, RequestID: "r1"})

	select {
	case ev := <-ch:
		if ev.RequestID != "r1" || ev.Seq != 1 {
			t.Errorf("got %+v (expected r1 seq 1)", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

// TestProgressDroppedTerminalKept verifies only progress events are dropped
// for a full subscriber and the terminal event still arrives.
func TestProgressDroppedTerminalKept(t *testing.T) {
	b := New(time.Second)
	defer b.Close()

	ch := make(chan Event, 1)
	b.Subscribe("slow", ch)

	b.Publish(Event{Kind: KindProgress, Current: 1, Max: 6}) // fills buffer
	b.Publish(Event{Kind: KindProgress, Current: 2, Max: 6}) // dropped

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: KindCompleted, Result: "/out.jpg"}) // waits for room
		close(done)
	}()

	first := <-ch
	if first.Current != 1 {
		t.Errorf("first event Current=%d (expected 1)", first.Current)
	}

	select {
	case ev := <-ch:
		if ev.Kind != KindCompleted {
			t.Errorf("second event kind=%v (expected completed)", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("terminal event not delivered")
	}
	<-done

	stats := b.Stats().Subscribers["slow"]
	if stats.Dropped != 1 || stats.Sent != 2 {
		t.Errorf("stats=%+v (expected 2 sent, 1 dropped)", stats)
	}
}

func TestTerminalTimesOut(t *testing.T) {
	b := New(20 * time.Millisecond)
	defer b.Close()

	ch := make(chan Event) // unbuffered, never read
	b.Subscribe("dead", ch)

	start := time.Now()
	b.Publish(Event{Kind: KindFailed, Error: "boom"})
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Publish waited far past the delivery timeout")
	}
	if b.Stats().Subscribers["dead"].TimedOut != 1 {
		t.Errorf("TimedOut=%d (expected 1)", b.Stats().Subscribers["dead"].TimedOut)
	}
}

// TestOrderPreserved verifies events reach a subscriber in publish order.
func TestOrderPreserved(t *testing.T) {
	b := New(0)
	defer b.Close()

	ch := make(chan Event, 100)
	b.Subscribe("ordered", ch)

	b.Publish(Event{Kind: KindStarted})
	for i := 0; i <= 6; i++ {
		b.Publish(Event{Kind: KindProgress, Current: i, Max: 6})
	}
	b.Publish(Event{Kind: KindCompleted})

	var last uint64
	for i := 0; i < 9; i++ {
		ev := <-ch
		if ev.Seq <= last {
			t.Fatalf("event %d out of order: seq %d after %d", i, ev.Seq, last)
		}
		last = ev.Seq
	}
}

func TestLatestReceiver(t *testing.T) {
	b := New(0)

	r, err := b.SubscribeLatest("status")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.TryReceive(); ok {
		t.Error("TryReceive returned an event before publish")
	}

	b.Publish(Event{Kind: KindProgress, Current: 1})
	b.Publish(Event{Kind: KindProgress, Current: 3})

	ev, ok := r.Receive()
	if !ok || ev.Current != 3 {
		t.Errorf("Receive()=%+v,%v (expected latest Current=3)", ev, ok)
	}

	got := make(chan bool, 1)
	go func() {
		_, ok := r.Receive() // already seen: blocks until close
		got <- ok
	}()
	b.Close()
	select {
	case ok := <-got:
		if ok {
			t.Error("Receive returned ok after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive not released by Close")
	}
}

func TestSubscribeErrors(t *testing.T) {
	b := New(0)
	ch := make(chan Event, 1)

	if err := b.Subscribe("a", nil); err != ErrNilChannel {
		t.Errorf("nil channel: err=%v", err)
	}
	b.Subscribe("a", ch)
	if err := b.Subscribe("a", ch); err != ErrSubscriberExists {
		t.Errorf("duplicate: err=%v", err)
	}
	if err := b.Unsubscribe("missing"); err != ErrSubscriberNotFound {
		t.Errorf("unknown: err=%v", err)
	}

	b.Close()
	b.Close()
	if err := b.Subscribe("b", ch); err != ErrBusClosed {
		t.Errorf("after close: err=%v", err)
	}
	b.Publish(Event{}) // no-op, must not panic
}

func TestKindString(t *testing.T) {
	if KindCompleted.String() != "completed" || Kind(42).String() != "unknown" {
		t.Error("unexpected Kind.String()")
	}
}
