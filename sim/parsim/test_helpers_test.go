package parsim

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/comm"
	"github.com/inference-sim/parsim/sim/trace"
)

// newHubPartitions creates n partitions connected by an in-memory hub.
func newHubPartitions(t *testing.T, n int) ([]*Partition, *comm.Hub) {
	t.Helper()
	hub := comm.NewHub(n)
	parts := make([]*Partition, n)
	for i := range parts {
		parts[i] = NewPartition(hub.Endpoint(i))
	}
	t.Cleanup(hub.Close)
	return parts, hub
}

// sendRemote sends an event at time ts from partition from to partition to.
func sendRemote(t *testing.T, from *Partition, to int, ts sim.SimTime) {
	t.Helper()
	require.NoError(t, from.SendEvent(context.Background(), sim.NewEvent(ts, 0, 0, nil), to))
}

// writeTrace writes recs as the trace file of partition id inside dir.
func writeTrace(t *testing.T, dir string, id int, recs ...trace.ExternalEvent) {
	t.Helper()
	w, err := trace.Create(trace.PathFor(dir, id))
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
}

func ext(ts sim.SimTime, src int32) trace.ExternalEvent {
	return trace.ExternalEvent{Time: ts, SourcePartition: src}
}

// recordingHandler collects executed events.
type recordingHandler struct {
	events []*sim.Event
}

func (h *recordingHandler) HandleEvent(ev *sim.Event) error {
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHandler) times() []sim.SimTime {
	out := make([]sim.SimTime, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.ArrivalTime()
	}
	return out
}

// readTrace returns every record of partition id's trace file inside dir.
func readTrace(t *testing.T, dir string, id int) []trace.ExternalEvent {
	t.Helper()
	r, err := trace.Open(trace.PathFor(dir, id), 0)
	require.NoError(t, err)
	defer r.Close()
	var out []trace.ExternalEvent
	for {
		e, err := r.LoadNext()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}
