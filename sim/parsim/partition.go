// Package parsim implements partition synchronization for parallel
// simulation: the shared receive machinery and the protocol variants that
// decide when a partition may execute its next event.
package parsim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/comm"
)

// Packet tags used between partitions.
const (
	TagEvent       comm.Tag = 1
	TagTermination comm.Tag = 2
)

// Resolver maps the destination carried by a remote event to a local module
// and gate. It returns an error for targets that do not exist here.
type Resolver interface {
	Resolve(module, gate int) error
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(module, gate int) error

func (f ResolverFunc) Resolve(module, gate int) error { return f(module, gate) }

// Partition is one independently executing share of the simulation. It owns
// exactly one future event set and one communication endpoint.
type Partition struct {
	ID       int
	Count    int
	FES      *sim.FutureEventSet
	Comm     comm.Comm
	Resolver Resolver // nil accepts every destination
}

// NewPartition creates the partition served by c.
func NewPartition(c comm.Comm) *Partition {
	return &Partition{
		ID:    c.PartitionID(),
		Count: c.NumPartitions(),
		FES:   sim.NewFutureEventSet(),
		Comm:  c,
	}
}

// Schedule inserts a locally-originated event.
func (p *Partition) Schedule(ev *sim.Event) {
	ev.SetSourcePartition(sim.LocalPartition)
	p.FES.Insert(ev)
}

// SendEvent transfers ev to partition dest. Ownership passes to the receiver.
func (p *Partition) SendEvent(ctx context.Context, ev *sim.Event, dest int) error {
	pkt := comm.Packet{Tag: TagEvent, Data: encodeEvent(ev)}
	if err := p.Comm.Send(ctx, pkt, dest); err != nil {
		return fmt.Errorf("partition %d: sending %v: %w", p.ID, ev, err)
	}
	return nil
}

// BroadcastTermination tells every other partition that this one stopped.
// Peers that are already gone are skipped.
func (p *Partition) BroadcastTermination(ctx context.Context, reason string) error {
	var errs []error
	for dest := 0; dest < p.Count; dest++ {
		if dest == p.ID {
			continue
		}
		err := p.Comm.Send(ctx, comm.Packet{Tag: TagTermination, Data: []byte(reason)}, dest)
		if errors.Is(err, comm.ErrInterrupted) {
			logrus.Debugf("partition %d: peer %d already stopped", p.ID, dest)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("notifying partition %d: %w", dest, err))
		}
	}
	return errors.Join(errs...)
}

// terminationNotifyTimeout bounds the end-of-run broadcast.
const terminationNotifyTimeout = 5 * time.Second

// Run drives the partition with sched until the run ends, then notifies the
// other partitions unless a peer's termination is what ended it. Cancelling
// ctx closes the partition's Comm, so a cancelled partition cannot receive
// afterwards.
func (p *Partition) Run(ctx context.Context, sched sim.Scheduler, h sim.EventHandler, horizon sim.SimTime) (*sim.Metrics, error) {
	// cancellation interrupts a scheduler blocked waiting for peers
	stopInterrupt := context.AfterFunc(ctx, func() {
		if err := p.Comm.Close(); err != nil {
			logrus.Warnf("partition %d: closing communication: %v", p.ID, err)
		}
	})
	r := sim.NewRunner(p.ID, sched, h, horizon)
	err := r.Run(ctx)
	stopInterrupt()

	if !errors.Is(r.Termination, sim.ErrPeerTerminated) {
		reason := "run ended"
		switch {
		case err != nil:
			reason = err.Error()
		case r.Termination != nil:
			reason = r.Termination.Error()
		}
		nctx, cancel := context.WithTimeout(context.Background(), terminationNotifyTimeout)
		if bErr := p.BroadcastTermination(nctx, reason); bErr != nil {
			logrus.Warnf("partition %d: %v", p.ID, bErr)
		}
		cancel()
	}
	return r.Metrics, err
}
