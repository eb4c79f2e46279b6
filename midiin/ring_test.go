package midiin

import "testing"

// TestRingOrdering tests FIFO delivery
func TestRingOrdering(t *testing.T) {
	r := newRing(8)
	for i := 0; i < 5; i++ {
		if !r.push(Message{Note: i}) {
			t.Fatalf("push %d failed on a non-full ring", i)
		}
	}
	var drained []int
	r.drain(func(m Message) { drained = append(drained, m.Note) })
	for i, got := range drained {
		if got != i {
			t.Errorf("drained[%d] = %d, want %d", i, got, i)
		}
	}
	if len(drained) != 5 {
		t.Errorf("drained %d messages, want 5", len(drained))
	}
}

// TestRingOverflowDropsAndCounts tests the bounded back-pressure contract:
// overflow drops the excess and counts it, never blocks
func TestRingOverflowDropsAndCounts(t *testing.T) {
	r := newRing(4)
	for i := 0; i < 6; i++ {
		r.push(Message{Note: i})
	}
	if got := r.lostCount(); got != 2 {
		t.Errorf("lostCount = %d, want 2", got)
	}
	var drained []int
	r.drain(func(m Message) { drained = append(drained, m.Note) })
	if len(drained) != 4 {
		t.Fatalf("drained %d messages, want 4", len(drained))
	}
	// The oldest messages survive; the excess was dropped.
	for i, got := range drained {
		if got != i {
			t.Errorf("drained[%d] = %d, want %d", i, got, i)
		}
	}
}

// TestRingReuseAfterDrain tests that capacity frees up after draining
func TestRingReuseAfterDrain(t *testing.T) {
	r := newRing(2)
	r.push(Message{Note: 1})
	r.push(Message{Note: 2})
	r.drain(func(Message) {})
	if !r.push(Message{Note: 3}) {
		t.Error("push failed after drain freed the ring")
	}
	count := 0
	r.drain(func(Message) { count++ })
	if count != 1 {
		t.Errorf("drained %d, want 1", count)
	}
}
