package parsim

import (
	"fmt"

	"github.com/inference-sim/parsim/sim"
)

// NoSynchronization passes messages between partitions without any
// synchronization. A late remote event earlier than the local clock is an
// incausality that stops the run with an error, so this protocol is mainly a
// template for real synchronization protocols.
type NoSynchronization struct {
	ProtocolBase
	lastTaken *sim.Event
}

var _ sim.Scheduler = (*NoSynchronization)(nil)

// NewNoSynchronization creates the protocol for partition p.
func NewNoSynchronization(p *Partition, cfg Config) *NoSynchronization {
	return &NoSynchronization{ProtocolBase: newProtocolBase(p, cfg)}
}

func (n *NoSynchronization) StartRun() error {
	n.lastTaken = nil
	return n.ProtocolBase.StartRun()
}

func (n *NoSynchronization) EndRun() error {
	n.lastTaken = nil
	return n.ProtocolBase.EndRun()
}

// TakeNextEvent processes whatever came from other partitions, then removes
// and returns the FES head. With an empty FES it waits for inbound messages.
func (n *NoSynchronization) TakeNextEvent() (*sim.Event, error) {
	if _, err := n.ReceiveNonblocking(); err != nil {
		return nil, err
	}
	for n.FES().IsEmpty() {
		ok, err := n.ReceiveBlocking(n.Config.ReceiveTimeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	ev, err := n.FES().RemoveFirst()
	if err != nil {
		return nil, err
	}
	n.lastTaken = ev
	return ev, nil
}

// PutBackEvent undoes the last TakeNextEvent.
func (n *NoSynchronization) PutBackEvent(ev *sim.Event) error {
	if ev == nil || ev != n.lastTaken {
		return fmt.Errorf("put back %v: not the last taken event: %w", ev, sim.ErrPreconditionViolation)
	}
	if err := n.FES().PutBack(ev); err != nil {
		return err
	}
	n.lastTaken = nil
	return nil
}
