package parsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/parsim/sim"
)

func TestNoSync_LocalEventDoesNotWaitForPeers(t *testing.T) {
	// GIVEN a local event and no remote traffic
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], DefaultConfig())
	parts[0].Schedule(sim.NewEvent(5, 0, 0, nil))
	require.NoError(t, ns.StartRun())

	// WHEN the next event is taken
	done := make(chan *sim.Event, 1)
	go func() {
		ev, err := ns.TakeNextEvent()
		assert.NoError(t, err)
		done <- ev
	}()

	// THEN it is returned without blocking on receive
	select {
	case ev := <-done:
		require.NotNil(t, ev)
		assert.Equal(t, sim.SimTime(5), ev.ArrivalTime())
	case <-time.After(2 * time.Second):
		t.Fatal("TakeNextEvent blocked with a local event pending")
	}
}

func TestNoSync_InboundDrainedBeforeTake(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], DefaultConfig())
	parts[0].Schedule(sim.NewEvent(5, 0, 0, nil))
	sendRemote(t, parts[1], 0, 2)
	require.NoError(t, ns.StartRun())

	ev, err := ns.TakeNextEvent()
	require.NoError(t, err)
	assert.Equal(t, sim.SimTime(2), ev.ArrivalTime())
	assert.Equal(t, 1, ev.SourcePartition())
}

func TestNoSync_WaitsForRemoteWhenEmpty(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], DefaultConfig())
	require.NoError(t, ns.StartRun())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = parts[1].SendEvent(t.Context(), sim.NewEvent(8, 0, 0, nil), 0)
	}()

	ev, err := ns.TakeNextEvent()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, sim.SimTime(8), ev.ArrivalTime())
}

func TestNoSync_EmptyWithTimeoutYields(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], Config{ReceiveTimeout: 10 * time.Millisecond})
	require.NoError(t, ns.StartRun())

	ev, err := ns.TakeNextEvent()
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestNoSync_PutBackRestoresFES(t *testing.T) {
	// GIVEN a FES with three events
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], DefaultConfig())
	for _, ts := range []sim.SimTime{4, 4, 9} {
		parts[0].Schedule(sim.NewEvent(ts, 0, 0, nil))
	}
	require.NoError(t, ns.StartRun())
	initial := parts[0].FES.Snapshot()

	// WHEN an event is taken and put back
	ev, err := ns.TakeNextEvent()
	require.NoError(t, err)
	require.NoError(t, ns.PutBackEvent(ev))

	// THEN the FES is exactly as before, including the insertion order
	assert.Equal(t, initial, parts[0].FES.Snapshot())

	again, err := ns.TakeNextEvent()
	require.NoError(t, err)
	assert.Same(t, ev, again)
}

func TestNoSync_PutBackRejectsOtherEvents(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], DefaultConfig())
	parts[0].Schedule(sim.NewEvent(1, 0, 0, nil))
	parts[0].Schedule(sim.NewEvent(2, 0, 0, nil))
	require.NoError(t, ns.StartRun())

	first, err := ns.TakeNextEvent()
	require.NoError(t, err)
	_, err = ns.TakeNextEvent()
	require.NoError(t, err)

	assert.ErrorIs(t, ns.PutBackEvent(first), sim.ErrPreconditionViolation)
	assert.ErrorIs(t, ns.PutBackEvent(nil), sim.ErrPreconditionViolation)
}

func TestNoSync_PeerTerminationEndsWait(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	ns := NewNoSynchronization(parts[0], DefaultConfig())
	require.NoError(t, ns.StartRun())
	require.NoError(t, parts[1].BroadcastTermination(t.Context(), "finished"))

	_, err := ns.TakeNextEvent()
	assert.True(t, sim.IsTermination(err))
	assert.ErrorIs(t, err, sim.ErrPeerTerminated)
}
