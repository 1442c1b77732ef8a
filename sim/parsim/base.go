package parsim

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/comm"
	"github.com/inference-sim/parsim/sim/trace"
)

// Config holds the settings shared by all protocols.
type Config struct {
	Debug          bool          // log every synchronization decision
	ReceiveTimeout time.Duration // <= 0 waits indefinitely for inbound messages
	TableSize      int           // trace records per disk read (ideal, ispeventlogger)
	TraceDir       string        // directory of the per-partition trace files
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{TableSize: trace.DefaultTableSize, TraceDir: "."}
}

// receiveFunc deposits one remote event into the local FES.
type receiveFunc func(ev *sim.Event, destModule, destGate, sourceProc int) error

// ProtocolBase is the machinery shared by every synchronization protocol:
// receiving inbound packets and depositing remote events into the FES.
//
// Thread-safety: NOT thread-safe. Used only from the partition's main loop.
type ProtocolBase struct {
	Partition *Partition
	Config    Config

	receive receiveFunc
	log     *logrus.Entry
	runs    int
}

func newProtocolBase(p *Partition, cfg Config) ProtocolBase {
	return ProtocolBase{
		Partition: p,
		Config:    cfg,
		log:       logrus.WithField("partition", p.ID),
	}
}

// StartRun is called at the beginning of a simulation run.
func (b *ProtocolBase) StartRun() error {
	b.runs++
	b.debugf("run %d started (%d partitions)", b.runs, b.Partition.Count)
	return nil
}

// EndRun is called at the end of a simulation run, also after failures.
func (b *ProtocolBase) EndRun() error {
	b.debugf("run %d ended with %d pending events", b.runs, b.FES().Len())
	return nil
}

// Runs returns how many runs were started.
func (b *ProtocolBase) Runs() int {
	return b.runs
}

// FES returns the partition's future event set.
func (b *ProtocolBase) FES() *sim.FutureEventSet {
	return b.Partition.FES
}

func (b *ProtocolBase) debugf(format string, args ...interface{}) {
	if b.Config.Debug {
		b.log.Debugf(format, args...)
	}
}

// ReceiveBlocking waits for one inbound packet and processes it.
// It returns true when the caller should re-check the FES, and false with a
// nil error when timeout elapsed first. Interruption of the communication
// layer and peer termination are returned as termination errors.
func (b *ProtocolBase) ReceiveBlocking(timeout time.Duration) (bool, error) {
	if b.Partition.Count == 1 {
		return false, sim.NewTermination(sim.ErrNoMoreEvents, fmt.Sprintf("partition %d has no peers", b.Partition.ID))
	}
	pkt, err := b.Partition.Comm.Receive(timeout)
	switch {
	case errors.Is(err, comm.ErrTimeout):
		return false, nil
	case errors.Is(err, comm.ErrInterrupted):
		return false, sim.NewTermination(sim.ErrInterrupted, fmt.Sprintf("partition %d", b.Partition.ID))
	case err != nil:
		return false, fmt.Errorf("partition %d: receive: %w", b.Partition.ID, err)
	}
	if err := b.processPacket(pkt); err != nil {
		return false, err
	}
	return true, nil
}

// ReceiveNonblocking processes every packet that is available right now.
// It reports whether anything was received.
func (b *ProtocolBase) ReceiveNonblocking() (bool, error) {
	received := false
	for {
		pkt, ok, err := b.Partition.Comm.TryReceive()
		if errors.Is(err, comm.ErrInterrupted) {
			return received, sim.NewTermination(sim.ErrInterrupted, fmt.Sprintf("partition %d", b.Partition.ID))
		}
		if err != nil {
			return received, fmt.Errorf("partition %d: receive: %w", b.Partition.ID, err)
		}
		if !ok {
			return received, nil
		}
		if err := b.processPacket(pkt); err != nil {
			return received, err
		}
		received = true
	}
}

func (b *ProtocolBase) processPacket(pkt comm.Packet) error {
	switch pkt.Tag {
	case TagEvent:
		ev, err := decodeEvent(pkt.Data)
		if err != nil {
			return fmt.Errorf("packet from partition %d: %w", pkt.Source, err)
		}
		process := b.receive
		if process == nil {
			process = b.ProcessReceivedMessage
		}
		return process(ev, ev.DestModule(), ev.DestGate(), pkt.Source)
	case TagTermination:
		return sim.NewTermination(sim.ErrPeerTerminated, fmt.Sprintf("partition %d: %s", pkt.Source, pkt.Data))
	default:
		return fmt.Errorf("partition %d: unknown packet tag %d from partition %d", b.Partition.ID, pkt.Tag, pkt.Source)
	}
}

// ProcessReceivedMessage stamps the source partition on a remote event,
// resolves its local destination and inserts it into the FES.
func (b *ProtocolBase) ProcessReceivedMessage(ev *sim.Event, destModule, destGate, sourceProc int) error {
	ev.SetSourcePartition(sourceProc)
	if r := b.Partition.Resolver; r != nil {
		if err := r.Resolve(destModule, destGate); err != nil {
			return fmt.Errorf("partition %d: cannot deliver %v from partition %d to module %d gate %d: %w",
				b.Partition.ID, ev, sourceProc, destModule, destGate, err)
		}
	}
	b.debugf("received %v from partition %d", ev, sourceProc)
	b.FES().Insert(ev)
	return nil
}

// stampSourcePriority makes remote events sort by source partition among
// same-timestamp events, so replays break ties the same way recordings do.
func (b *ProtocolBase) stampSourcePriority() {
	b.receive = func(ev *sim.Event, destModule, destGate, sourceProc int) error {
		ev.SetSchedulingPriority(sourceProc)
		return b.ProcessReceivedMessage(ev, destModule, destGate, sourceProc)
	}
}
