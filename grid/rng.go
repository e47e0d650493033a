package grid

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// RunKey uniquely identifies a reproducible scenario run.
// Two runs with the same RunKey and identical configuration MUST produce
// bit-for-bit identical results.
type RunKey int64

// NewRunKey creates a RunKey from a seed value.
func NewRunKey(seed int64) RunKey {
	return RunKey(seed)
}

const (
	// SubsystemNoisyCosts is the RNG subsystem for cost perturbations in the
	// iterative solver.
	SubsystemNoisyCosts = "noisycosts"

	// SubsystemClustering is the RNG subsystem for k-means seeding.
	SubsystemClustering = "clustering"
)

// SubsystemIteration returns the subsystem name for solve iteration n, so
// each iteration draws an isolated, reproducible perturbation stream.
func SubsystemIteration(n int) string {
	return fmt.Sprintf("iteration_%d", n)
}

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derived seed: masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	key        RunKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a RunKey.
func NewPartitionedRNG(key RunKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// fnv1a64 hashes a string with FNV-1a for seed derivation.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
