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
	// BDD: Same key+ONU produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		v1 := rng1.ForTraffic(3).Float64()
		v2 := rng2.ForTraffic(3).Float64()
		if v1 != v2 {
			t.Errorf("Value %d: got %v and %v, want identical", i, v1, v2)
		}
	}
}

func TestPartitionedRNG_TrafficIsolation(t *testing.T) {
	// BDD: Drawing from ONU 0's stream doesn't affect ONU 1's
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForTraffic(0).Float64()
	}
	got := rngA.ForTraffic(1).Float64()

	fresh := NewPartitionedRNG(NewSimulationKey(42))
	want := fresh.ForTraffic(1).Float64()

	if got != want {
		t.Errorf("ONU 1 first value = %v, want %v (isolation broken)", got, want)
	}
}

func TestPartitionedRNG_ONUsDrawDistinctStreams(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(1))
	if rng.ForTraffic(0).Uint64() == rng.ForTraffic(1).Uint64() {
		t.Error("ONU 0 and ONU 1 produced the same first value")
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	// BDD: Same name returns same *rand.Rand instance
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if rng.ForTraffic(2) != rng.ForTraffic(2) {
		t.Error("ForTraffic returned different instances for same ONU")
	}
	if rng.ForSubsystem("x") != rng.ForSubsystem("x") {
		t.Error("ForSubsystem returned different instances for same name")
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	seed := int64(12345)
	rng := NewPartitionedRNG(NewSimulationKey(seed))

	if rng.Key() != SimulationKey(seed) {
		t.Errorf("Key() = %v, want %v", rng.Key(), seed)
	}
}

func TestPartitionedRNG_NegativeSeed(t *testing.T) {
	// BDD: MinInt64 seed works correctly
	rng := NewPartitionedRNG(NewSimulationKey(math.MinInt64))
	val := rng.ForTraffic(5).Float64()
	if val < 0 || val >= 1 {
		t.Errorf("Float64() returned %v, want [0, 1)", val)
	}
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	// BDD: Subsystems map is empty until a stream is requested
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if len(rng.subsystems) != 0 {
		t.Errorf("New PartitionedRNG has %d subsystems, want 0", len(rng.subsystems))
	}
	rng.ForTraffic(0)
	if len(rng.subsystems) != 1 {
		t.Errorf("After ForTraffic: %d subsystems, want 1", len(rng.subsystems))
	}
}
