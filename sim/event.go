package sim

import (
	"fmt"
	"math"
)

// SimTime is a simulation timestamp in ticks. The tick scale is chosen by the model.
type SimTime int64

// MaxTime is the "no such time" sentinel.
const MaxTime SimTime = math.MaxInt64

// LocalPartition is the source partition of locally-originated events.
const LocalPartition = -1

// Event is one unit of work scheduled for a simulation time.
//
// Events are never mutated in place except for the scheduling priority and
// the source partition, which a scheduler may overwrite once causality is
// resolved. The insertion sequence is assigned by the FutureEventSet.
type Event struct {
	arrivalTime        SimTime
	schedulingPriority int
	sourcePartition    int
	insertionSequence  uint64

	destModule int
	destGate   int
	kind       int
	payload    []byte
}

// NewEvent creates a locally-originated event.
func NewEvent(t SimTime, priority, kind int, payload []byte) *Event {
	return &Event{
		arrivalTime:        t,
		schedulingPriority: priority,
		sourcePartition:    LocalPartition,
		kind:               kind,
		payload:            payload,
	}
}

// WithTarget returns the event after binding it to a destination module and gate.
func (e *Event) WithTarget(module, gate int) *Event {
	e.destModule = module
	e.destGate = gate
	return e
}

func (e *Event) ArrivalTime() SimTime      { return e.arrivalTime }
func (e *Event) SchedulingPriority() int   { return e.schedulingPriority }
func (e *Event) SourcePartition() int      { return e.sourcePartition }
func (e *Event) InsertionSequence() uint64 { return e.insertionSequence }
func (e *Event) DestModule() int           { return e.destModule }
func (e *Event) DestGate() int             { return e.destGate }
func (e *Event) Kind() int                 { return e.kind }
func (e *Event) Payload() []byte           { return e.payload }

// IsLocal reports whether the event originated in this partition.
func (e *Event) IsLocal() bool {
	return e.sourcePartition == LocalPartition
}

// SetSchedulingPriority overwrites the tie-break priority. Must not be called
// while the event sits in a FutureEventSet.
func (e *Event) SetSchedulingPriority(p int) {
	e.schedulingPriority = p
}

// SetSourcePartition records the partition that produced the event.
func (e *Event) SetSourcePartition(id int) {
	e.sourcePartition = id
}

func (e *Event) String() string {
	return fmt.Sprintf("event(t=%d prio=%d src=%d seq=%d kind=%d)",
		e.arrivalTime, e.schedulingPriority, e.sourcePartition, e.insertionSequence, e.kind)
}

// before is the FES ordering: arrival time → priority → insertion sequence.
func before(a, b *Event) bool {
	if a.arrivalTime != b.arrivalTime {
		return a.arrivalTime < b.arrivalTime
	}
	if a.schedulingPriority != b.schedulingPriority {
		return a.schedulingPriority < b.schedulingPriority
	}
	return a.insertionSequence < b.insertionSequence
}
