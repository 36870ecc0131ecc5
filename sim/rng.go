package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemTraffic returns the subsystem name for ONU N's traffic generator.
func SubsystemTraffic(id int) string {
	return fmt.Sprintf("traffic_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG sources per subsystem.
//
// Derivation: each subsystem gets a PCG source seeded with
// (masterSeed + offset, fnv1a64(subsystemName)). Traffic generators use
// offset = ONU id, so ONU i draws from seed+i.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	return p.derive(name, 0)
}

// ForTraffic returns the RNG driving ONU id's traffic generator.
func (p *PartitionedRNG) ForTraffic(id int) *rand.Rand {
	return p.derive(SubsystemTraffic(id), int64(id))
}

func (p *PartitionedRNG) derive(name string, offset int64) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := uint64(int64(p.key) + offset)
	rng := rand.New(rand.NewPCG(seed, fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
