package notifybus_test

import (
	"testing"

	"github.com/e7canasta/filtershow/modules/notifybus"
)

func TestDropRate(t *testing.T) {
	bus := notifybus.New(0)
	defer bus.Close()

	ch := make(chan notifybus.Event, 1)
	bus.Subscribe("sink", ch)

	bus.Publish(notifybus.Event{Kind: notifybus.KindProgress})
	bus.Publish(notifybus.Event{Kind: notifybus.KindProgress})

	stats := bus.Stats()
	if rate := notifybus.DropRate(stats, "sink"); rate != 0.5 {
		t.Errorf("DropRate=%v (expected 0.5)", rate)
	}
	if rate := notifybus.DropRate(stats, "missing"); rate != 0 {
		t.Errorf("DropRate for unknown subscriber=%v", rate)
	}
	if stats.TotalPublished != 2 {
		t.Errorf("TotalPublished=%d (expected 2)", stats.TotalPublished)
	}
}
