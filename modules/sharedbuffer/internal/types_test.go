package internal

import "testing"

func TestSlotTableValid(t *testing.T) {
	cases := map[string]struct {
		table SlotTable
		valid bool
	}{
		"initial":   {SlotTable{0, 1, 2}, true},
		"rotated":   {SlotTable{2, 0, 1}, true},
		"duplicate": {SlotTable{0, 0, 2}, false},
		"range":     {SlotTable{0, 1, 3}, false},
	}
	for name, tc := range cases {
		if got := tc.table.Valid(); got != tc.valid {
			t.Errorf("%s: Valid()=%v (expected %v)", name, got, tc.valid)
		}
	}
}

// TestSyncAdvancesGeneration validates both swaps synchronize the buffer they hand off.
func TestSyncAdvancesGeneration(t *testing.T) {
	sb := NewSharedBuffer()

	producer := sb.Producer()
	sb.SwapProducer()
	if producer.Generation() != 1 {
		t.Errorf("producer generation=%d after SwapProducer (expected 1)", producer.Generation())
	}

	consumer := sb.Consumer()
	sb.SwapConsumer()
	if consumer.Generation() != 1 {
		t.Errorf("consumer generation=%d after SwapConsumer (expected 1)", consumer.Generation())
	}
	if consumer.SyncedAt().IsZero() {
		t.Error("SyncedAt not recorded")
	}
}

func TestSlotString(t *testing.T) {
	if SlotIntermediate.String() != "intermediate" {
		t.Errorf("SlotIntermediate.String()=%q", SlotIntermediate.String())
	}
	if Slot(9).String() != "unknown" {
		t.Errorf("Slot(9).String()=%q", Slot(9).String())
	}
}
