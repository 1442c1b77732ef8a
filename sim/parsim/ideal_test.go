package parsim

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/parsim/sim"
)

func newIdeal(t *testing.T, p *Partition, dir string) *IdealSimulationProtocol {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TraceDir = dir
	isp := NewIdealSimulationProtocol(p, cfg)
	require.NoError(t, isp.StartRun())
	t.Cleanup(func() { _ = isp.EndRun() })
	return isp
}

func TestIdeal_LocalBeforeExpectedThenWaits(t *testing.T) {
	// GIVEN a trace [(5,1),(9,2)], a local event at 3 and the t=9 event from partition 2 already queued
	parts, _ := newHubPartitions(t, 3)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(5, 1), ext(9, 2))
	isp := newIdeal(t, parts[0], dir)
	parts[0].Schedule(sim.NewEvent(3, 0, 0, nil))
	sendRemote(t, parts[2], 0, 9)

	// WHEN events are taken
	first, err := isp.TakeNextEvent()
	require.NoError(t, err)

	// THEN the local event comes first
	assert.Equal(t, sim.SimTime(3), first.ArrivalTime())
	assert.True(t, first.IsLocal())

	// AND the protocol blocks for (5,1) although (9,2) is already in the FES
	got := make(chan *sim.Event, 1)
	go func() {
		ev, err := isp.TakeNextEvent()
		assert.NoError(t, err)
		got <- ev
	}()
	select {
	case ev := <-got:
		t.Fatalf("returned %v before the expected event arrived", ev)
	case <-time.After(50 * time.Millisecond):
	}
	sendRemote(t, parts[1], 0, 5)

	var second *sim.Event
	select {
	case second = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("expected event was never returned")
	}
	require.NotNil(t, second)
	assert.Equal(t, sim.SimTime(5), second.ArrivalTime())
	assert.Equal(t, 1, second.SourcePartition())
	assert.Equal(t, 0, second.SchedulingPriority())

	third, err := isp.TakeNextEvent()
	require.NoError(t, err)
	assert.Equal(t, sim.SimTime(9), third.ArrivalTime())
	assert.Equal(t, 2, third.SourcePartition())

	// AND the exhausted trace ends the run
	_, err = isp.TakeNextEvent()
	assert.ErrorIs(t, err, sim.ErrTraceExhausted)
	assert.True(t, sim.IsTermination(err))
}

func TestIdeal_UnexpectedRemoteEventIsMismatch(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(5, 1))
	isp := newIdeal(t, parts[0], dir)
	sendRemote(t, parts[1], 0, 4)

	_, err := isp.TakeNextEvent()

	var mismatch *sim.CausalityTraceMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, sim.SimTime(5), mismatch.ExpectedTime)
	assert.Equal(t, 1, mismatch.ExpectedSource)
	assert.Equal(t, sim.SimTime(4), mismatch.ActualTime)
	assert.Equal(t, 1, mismatch.ActualSource)
	assert.False(t, sim.IsTermination(err))
}

func TestIdeal_EmptyTraceTerminatesImmediately(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	dir := t.TempDir()
	writeTrace(t, dir, 0)
	isp := newIdeal(t, parts[0], dir)
	parts[0].Schedule(sim.NewEvent(1, 0, 0, nil))

	ev, err := isp.TakeNextEvent()
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, sim.ErrTraceExhausted)
	assert.Equal(t, 1, parts[0].FES.Len())
}

func TestIdeal_MissingTraceFailsStartRun(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	cfg := DefaultConfig()
	cfg.TraceDir = t.TempDir()
	isp := NewIdealSimulationProtocol(parts[0], cfg)

	err := isp.StartRun()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoError(t, isp.EndRun())
}

func TestIdeal_PutBackUnsupported(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(5, 1))
	isp := newIdeal(t, parts[0], dir)
	parts[0].Schedule(sim.NewEvent(1, 0, 0, nil))

	ev, err := isp.TakeNextEvent()
	require.NoError(t, err)
	assert.ErrorIs(t, isp.PutBackEvent(ev), sim.ErrUnsupportedOperation)
}

func TestIdeal_ReceivedEventsSortBySource(t *testing.T) {
	// GIVEN two remote events at the same time from partitions 2 and 1, received in that order
	parts, _ := newHubPartitions(t, 3)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(7, 1), ext(7, 2))
	isp := newIdeal(t, parts[0], dir)
	sendRemote(t, parts[2], 0, 7)
	sendRemote(t, parts[1], 0, 7)

	// WHEN both are taken
	var sources []int
	for i := 0; i < 2; i++ {
		ev, err := isp.TakeNextEvent()
		require.NoError(t, err)
		require.NotNil(t, ev)
		sources = append(sources, ev.SourcePartition())
	}

	// THEN the lower source partition is released first
	assert.Equal(t, []int{1, 2}, sources)
}

func TestIdeal_LocalEventAtExpectedTime(t *testing.T) {
	parts, _ := newHubPartitions(t, 3)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(5, 1))
	isp := newIdeal(t, parts[0], dir)
	parts[0].Schedule(sim.NewEvent(5, 1, 0, nil))

	// a local event that sorts before the expected one is released without waiting
	ev, err := isp.TakeNextEvent()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.IsLocal())

	next, ok := isp.NextExternalEvent()
	assert.True(t, ok)
	assert.Equal(t, ext(5, 1), next)
}

func TestIdeal_LocalEventAfterExpectedWaits(t *testing.T) {
	parts, _ := newHubPartitions(t, 3)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(5, 1))
	cfg := DefaultConfig()
	cfg.TraceDir = dir
	cfg.ReceiveTimeout = 10 * time.Millisecond
	isp := NewIdealSimulationProtocol(parts[0], cfg)
	require.NoError(t, isp.StartRun())
	defer isp.EndRun()
	parts[0].Schedule(sim.NewEvent(5, 2, 0, nil))

	ev, err := isp.TakeNextEvent()
	assert.NoError(t, err)
	assert.Nil(t, ev, "a local event sorting after the expected one must wait")
	assert.Equal(t, 1, parts[0].FES.Len())
}

func TestIdeal_PeerTerminationWhileWaiting(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(5, 1))
	isp := newIdeal(t, parts[0], dir)
	parts[0].Schedule(sim.NewEvent(8, 0, 0, nil))
	require.NoError(t, parts[1].BroadcastTermination(t.Context(), "aborted"))

	_, err := isp.TakeNextEvent()
	assert.ErrorIs(t, err, sim.ErrPeerTerminated)
}

func TestIdeal_SmallTableSizeReplaysWholeTrace(t *testing.T) {
	parts, _ := newHubPartitions(t, 2)
	dir := t.TempDir()
	writeTrace(t, dir, 0, ext(1, 1), ext(2, 1), ext(3, 1))
	cfg := Config{TableSize: 1, TraceDir: dir}
	isp := NewIdealSimulationProtocol(parts[0], cfg)
	require.NoError(t, isp.StartRun())
	defer isp.EndRun()
	for _, ts := range []sim.SimTime{1, 2, 3} {
		sendRemote(t, parts[1], 0, ts)
	}

	var times []sim.SimTime
	for {
		ev, err := isp.TakeNextEvent()
		if sim.IsTermination(err) {
			break
		}
		require.NoError(t, err)
		times = append(times, ev.ArrivalTime())
	}
	assert.Equal(t, []sim.SimTime{1, 2, 3}, times)
}
