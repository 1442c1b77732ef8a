package sim

import (
	"container/heap"
	"fmt"
	"sort"
)

// FutureEventSet is the time-ordered set of pending events of one partition.
// Ordering: arrival time → scheduling priority → insertion sequence.
//
// Thread-safety: NOT thread-safe. Owned by a single partition.
type FutureEventSet struct {
	events  eventHeap
	nextSeq uint64
}

// eventHeap implements heap.Interface
type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return before(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// NewFutureEventSet creates an empty FES.
func NewFutureEventSet() *FutureEventSet {
	f := &FutureEventSet{events: make(eventHeap, 0)}
	heap.Init(&f.events)
	return f
}

// Insert adds an event and assigns it the next insertion sequence.
func (f *FutureEventSet) Insert(e *Event) {
	f.nextSeq++
	e.insertionSequence = f.nextSeq
	heap.Push(&f.events, e)
}

// PutBack reinserts an event previously returned by RemoveFirst. The event
// keeps its insertion sequence, so it lands in its exact prior position.
func (f *FutureEventSet) PutBack(e *Event) error {
	if e == nil {
		return fmt.Errorf("put back nil event: %w", ErrPreconditionViolation)
	}
	if e.insertionSequence == 0 || e.insertionSequence > f.nextSeq {
		return fmt.Errorf("put back %v: event was never inserted into this FES: %w", e, ErrPreconditionViolation)
	}
	heap.Push(&f.events, e)
	return nil
}

// PeekFirst returns the minimal event without removing it, or nil if empty.
func (f *FutureEventSet) PeekFirst() *Event {
	if len(f.events) == 0 {
		return nil
	}
	return f.events[0]
}

// RemoveFirst removes and returns the minimal event.
func (f *FutureEventSet) RemoveFirst() (*Event, error) {
	if len(f.events) == 0 {
		return nil, ErrEmptyFES
	}
	return heap.Pop(&f.events).(*Event), nil
}

// IsEmpty reports whether no event is pending.
func (f *FutureEventSet) IsEmpty() bool {
	return len(f.events) == 0
}

// Len returns the number of pending events.
func (f *FutureEventSet) Len() int {
	return len(f.events)
}

// Snapshot returns the pending events in execution order. The FES is not modified.
func (f *FutureEventSet) Snapshot() []*Event {
	out := make([]*Event, len(f.events))
	copy(out, f.events)
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}
