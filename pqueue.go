// -*- tab-width:2 -*-

package sim

import (
	"container/heap"
)

// An event is a callback we manage in the priority queue.
type event struct {
	at        SimTime
	seq       uint64 // insertion order, breaks ties at equal times
	cb        func()
	cancelled bool
	fired     bool
	sentinel  bool // the StopAt marker
	// The index is needed by heap.Fix and is maintained by the heap.Interface methods.
	index int
}

// eventQueue implements heap.Interface and holds events,
// earliest (at, seq) first.
type eventQueue []*event

func (pq eventQueue) Len() int { return len(pq) }

func (pq eventQueue) Less(i, j int) bool {
	if pq[i].at != pq[j].at {
		return pq[i].at < pq[j].at
	}

	return pq[i].seq < pq[j].seq
}

func (pq eventQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds a value to the pqueue - called by
// heap.Interface
func (pq *eventQueue) Push(x any) {
	n := len(*pq)
	e := x.(*event) //nolint:forcetypeassert
	e.index = n
	*pq = append(*pq, e)
}

// Pop removes a value from the pqueue -
// called by heap.Interface
func (pq *eventQueue) Pop() any {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	e.index = -1   // for safety
	*pq = old[0 : n-1]

	return e
}

// peek returns the earliest event without removing it.
func (pq eventQueue) peek() *event {
	if len(pq) == 0 {
		return nil
	}

	return pq[0]
}

// push and pop are the typed heap operations the loop uses.
func (pq *eventQueue) push(e *event) {
	heap.Push(pq, e)
}

func (pq *eventQueue) pop() *event {
	return heap.Pop(pq).(*event) //nolint:forcetypeassert
}
