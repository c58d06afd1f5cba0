// -*- tab-width:2 -*-
package sim

import (
	"container/heap"
	"testing"
)

// TestPQueue puts events in out of order and checks they come out by
// time, then by insertion order.
func TestPQueue(t *testing.T) {
	items := []struct {
		at  SimTime
		seq uint64
	}{
		{3, 1}, {1, 2}, {4, 3}, {1, 4}, {2, 5}, {1, 6},
	}

	pq := make(eventQueue, 0, len(items))
	for _, it := range items {
		pq.push(&event{at: it.at, seq: it.seq})
	}

	// fix up an item the way heap.Fix users do
	late := &event{at: 0, seq: 7}
	pq.push(late)
	late.at = 5
	heap.Fix(&pq, late.index)

	want := []uint64{2, 4, 6, 5, 1, 3, 7}
	for i, seq := range want {
		if top := pq.peek(); top == nil || top.seq != seq {
			t.Fatalf("peek %d: want seq %d, got %+v", i, seq, top)
		}

		e := pq.pop()
		if e.seq != seq {
			t.Fatalf("pop %d: want seq %d got %d", i, seq, e.seq)
		}

		if e.index != -1 {
			t.Errorf("popped event keeps index %d", e.index)
		}
	}

	if pq.peek() != nil || pq.Len() != 0 {
		t.Fatal("queue should be empty")
	}
}
