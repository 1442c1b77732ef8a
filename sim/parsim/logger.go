package parsim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/trace"
)

// EventLogger wraps a scheduler and records every remote event it releases
// into the partition's trace file. The trace is what IdealSimulationProtocol
// replays later.
//
// A record is written one take late, so PutBackEvent can still retract it.
type EventLogger struct {
	inner     sim.Scheduler
	partition *Partition
	cfg       Config

	w       *trace.Writer
	pending *sim.Event
	last    trace.ExternalEvent
	written bool
}

// ErrUnreplayableTrace is returned when the recorded order of two
// same-time remote events differs from the order a replay would use.
var ErrUnreplayableTrace = errors.New("recorded trace cannot be replayed deterministically")

var _ sim.Scheduler = (*EventLogger)(nil)

// NewEventLogger wraps inner, which must schedule events of partition p.
func NewEventLogger(inner sim.Scheduler, p *Partition, cfg Config) *EventLogger {
	return &EventLogger{inner: inner, partition: p, cfg: cfg}
}

func (l *EventLogger) StartRun() error {
	w, err := trace.Create(trace.PathFor(l.cfg.TraceDir, l.partition.ID))
	if err != nil {
		return fmt.Errorf("event logger: %w", err)
	}
	if err := l.inner.StartRun(); err != nil {
		return errors.Join(err, w.Close())
	}
	l.w = w
	l.pending = nil
	l.written = false
	return nil
}

// EndRun flushes the last record and closes the trace.
func (l *EventLogger) EndRun() error {
	flushErr := l.flush()
	var closeErr error
	if l.w != nil {
		closeErr = l.w.Close()
		if l.cfg.Debug {
			logrus.WithField("partition", l.partition.ID).Debugf("recorded %d external events", l.w.Count())
		}
		l.w = nil
	}
	return errors.Join(flushErr, closeErr, l.inner.EndRun())
}

func (l *EventLogger) flush() error {
	if l.pending == nil || l.w == nil {
		return nil
	}
	ev := l.pending
	l.pending = nil
	rec := trace.ExternalEvent{Time: ev.ArrivalTime(), SourcePartition: int32(ev.SourcePartition())}
	if err := l.w.Write(rec); err != nil {
		return err
	}
	l.last, l.written = rec, true
	return nil
}

// checkReplayable rejects a remote event that executes after a same-time
// remote event from a higher partition. Replays sort same-time remote
// events by source, so such a trace matches only some arrival orders.
func (l *EventLogger) checkReplayable(ev *sim.Event) error {
	if !l.written || ev.ArrivalTime() != l.last.Time || int32(ev.SourcePartition()) >= l.last.SourcePartition {
		return nil
	}
	return fmt.Errorf("event logger: %v from partition %d executed after %v: %w",
		ev, ev.SourcePartition(), l.last, ErrUnreplayableTrace)
}

func (l *EventLogger) TakeNextEvent() (*sim.Event, error) {
	if err := l.flush(); err != nil {
		return nil, err
	}
	ev, err := l.inner.TakeNextEvent()
	if ev != nil && !ev.IsLocal() {
		if err := l.checkReplayable(ev); err != nil {
			return nil, err
		}
		l.pending = ev
	}
	return ev, err
}

func (l *EventLogger) PutBackEvent(ev *sim.Event) error {
	if err := l.inner.PutBackEvent(ev); err != nil {
		return err
	}
	if ev == l.pending {
		l.pending = nil
	}
	return nil
}
