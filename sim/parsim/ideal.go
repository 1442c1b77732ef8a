package parsim

import (
	"errors"
	"fmt"
	"io"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/trace"
)

// IdealSimulationProtocol replays a trace of the external events observed in
// a previous, validated run. Knowing exactly when the next remote event will
// arrive, it blocks only when that event is truly needed, which gives the
// best-case cost of any correct conservative protocol. It cannot be used for
// a first run, since the trace must already exist.
type IdealSimulationProtocol struct {
	ProtocolBase

	reader   *trace.Reader
	next     trace.ExternalEvent
	needNext bool
}

var _ sim.Scheduler = (*IdealSimulationProtocol)(nil)

// NewIdealSimulationProtocol creates the protocol for partition p.
func NewIdealSimulationProtocol(p *Partition, cfg Config) *IdealSimulationProtocol {
	isp := &IdealSimulationProtocol{ProtocolBase: newProtocolBase(p, cfg)}
	isp.stampSourcePriority()
	return isp
}

// StartRun opens this partition's trace file. Failure aborts the run.
func (p *IdealSimulationProtocol) StartRun() error {
	r, err := trace.Open(trace.PathFor(p.Config.TraceDir, p.Partition.ID), p.Config.TableSize)
	if err != nil {
		return fmt.Errorf("ideal simulation protocol: %w", err)
	}
	p.reader = r
	p.needNext = true
	return p.ProtocolBase.StartRun()
}

// EndRun closes the trace file.
func (p *IdealSimulationProtocol) EndRun() error {
	var closeErr error
	if p.reader != nil {
		closeErr = p.reader.Close()
		p.reader = nil
	}
	return errors.Join(closeErr, p.ProtocolBase.EndRun())
}

// NextExternalEvent returns the record the protocol is currently waiting
// for, and false if it has not been loaded yet.
func (p *IdealSimulationProtocol) NextExternalEvent() (trace.ExternalEvent, bool) {
	return p.next, !p.needNext
}

func (p *IdealSimulationProtocol) readNextRecordedEvent() error {
	e, err := p.reader.LoadNext()
	if errors.Is(err, io.EOF) {
		return sim.NewTermination(sim.ErrTraceExhausted, fmt.Sprintf("partition %d", p.Partition.ID))
	}
	if err != nil {
		return fmt.Errorf("ideal simulation protocol: %w", err)
	}
	p.next = e
	p.needNext = false
	p.debugf("next expected external event: srcProcId=%d t=%d", e.SourcePartition, e.Time)
	return nil
}

func (p *IdealSimulationProtocol) isExpected(ev *sim.Event) bool {
	return ev.SourcePartition() == int(p.next.SourcePartition) && ev.ArrivalTime() == p.next.Time
}

func (p *IdealSimulationProtocol) mismatch(ev *sim.Event) error {
	return &sim.CausalityTraceMismatchError{
		ExpectedTime:   p.next.Time,
		ExpectedSource: int(p.next.SourcePartition),
		ActualTime:     ev.ArrivalTime(),
		ActualSource:   ev.SourcePartition(),
	}
}

// TakeNextEvent returns local events until the next expected external event,
// then waits until exactly that event has arrived and returns it.
func (p *IdealSimulationProtocol) TakeNextEvent() (*sim.Event, error) {
	if p.needNext {
		if err := p.readNextRecordedEvent(); err != nil {
			return nil, err
		}
	}

	// if no more local events, wait for something to come from other partitions
	for p.FES().IsEmpty() {
		ok, err := p.ReceiveBlocking(p.Config.ReceiveTimeout)
		if err != nil || !ok {
			return nil, err
		}
	}

	waiting := false
	for {
		head := p.FES().PeekFirst()
		t := head.ArrivalTime()
		switch {
		case p.isExpected(head):
			p.debugf("expected external event (srcProcId=%d t=%d) has arrived", head.SourcePartition(), t)
			return p.takeExternal(head)
		case !head.IsLocal() && (t < p.next.Time || (t == p.next.Time && head.SchedulingPriority() < int(p.next.SourcePartition))):
			// a remote event the trace does not account for
			return nil, p.mismatch(head)
		case t < p.next.Time:
			return p.takeLocal(head)
		case t == p.next.Time && head.SchedulingPriority() <= int(p.next.SourcePartition):
			// the expected event will sort after this one once it arrives
			return p.takeLocal(head)
		}

		if !waiting {
			p.debugf("next local event at %d is past the next external event expected for t=%d, waiting", t, p.next.Time)
			waiting = true
		}
		ok, err := p.ReceiveBlocking(p.Config.ReceiveTimeout)
		if err != nil || !ok {
			return nil, err
		}
	}
}

func (p *IdealSimulationProtocol) takeLocal(head *sim.Event) (*sim.Event, error) {
	ev, err := p.FES().RemoveFirst()
	if err != nil {
		return nil, err
	}
	if ev != head {
		return nil, fmt.Errorf("ideal simulation protocol: FES head changed during take: %w", sim.ErrPreconditionViolation)
	}
	return ev, nil
}

func (p *IdealSimulationProtocol) takeExternal(head *sim.Event) (*sim.Event, error) {
	ev, err := p.takeLocal(head)
	if err != nil {
		return nil, err
	}
	ev.SetSchedulingPriority(0)
	p.needNext = true
	return ev, nil
}

// PutBackEvent is not supported: the trace cursor cannot be moved back.
func (p *IdealSimulationProtocol) PutBackEvent(ev *sim.Event) error {
	return fmt.Errorf("ideal simulation protocol: run-until-event cannot be used with this scheduler (put back %v): %w",
		ev, sim.ErrUnsupportedOperation)
}
