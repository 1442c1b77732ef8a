package sim

import (
	"math"
	"testing"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemPartition(1)).Float64()
		b := rng2.ForSubsystem(SubsystemPartition(1)).Float64()
		if a != b {
			t.Errorf("draw %d: %v != %v", i, a, b)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// Drawing from partition 0 must not shift partition 1's stream
	isolated := NewPartitionedRNG(NewSimulationKey(7))
	want := isolated.ForSubsystem(SubsystemPartition(1)).Uint64()

	mixed := NewPartitionedRNG(NewSimulationKey(7))
	for i := 0; i < 100; i++ {
		mixed.ForSubsystem(SubsystemPartition(0)).Uint64()
	}
	got := mixed.ForSubsystem(SubsystemPartition(1)).Uint64()

	if got != want {
		t.Errorf("partition 1 stream disturbed by partition 0 draws: got %d, want %d", got, want)
	}
}

func TestPartitionedRNG_DistinctPartitionsDiffer(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	a := rng.ForSubsystem(SubsystemPartition(0)).Uint64()
	b := rng.ForSubsystem(SubsystemPartition(1)).Uint64()
	if a == b {
		t.Errorf("partitions 0 and 1 produced the same first draw %d", a)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	r1 := rng.ForSubsystem(SubsystemModel)
	r2 := rng.ForSubsystem(SubsystemModel)
	if r1 != r2 {
		t.Error("ForSubsystem should return the cached instance")
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(99))
	if rng.Key() != 99 {
		t.Errorf("Key() = %d, want 99", rng.Key())
	}
}

func TestFnv1a64_Deterministic(t *testing.T) {
	if fnv1a64("partition_3") != fnv1a64("partition_3") {
		t.Error("fnv1a64 must be deterministic")
	}
	if fnv1a64("partition_0") == fnv1a64("partition_1") {
		t.Error("expected distinct hashes for distinct names")
	}
}

func TestSubsystemPartition(t *testing.T) {
	if got := SubsystemPartition(3); got != "partition_3" {
		t.Errorf("SubsystemPartition(3) = %q, want %q", got, "partition_3")
	}
}
