package timeline

import (
	"hash/fnv"
	"math/rand"
	"strconv"
)

// Jitter supplies the offset applied to synthesized actual timestamps.
// Fraction returns a value in [-1, 1] that is scaled by the jitter ratio.
// Implementations must be deterministic for a given key and step.
type Jitter interface {
	Fraction(key string, step int) float64
}

// NoJitter places synthesized actuals on their expected midpoint.
type NoJitter struct{}

// Fraction implements Jitter.
func (NoJitter) Fraction(string, int) float64 { return 0 }

// SeededJitter derives a repeatable pseudo-random fraction from a seed, the
// shipment key and the step index. It holds no mutable state.
type SeededJitter struct {
	seed int64
}

// NewSeededJitter returns a SeededJitter for seed.
func NewSeededJitter(seed int64) SeededJitter { return SeededJitter{seed: seed} }

// Fraction implements Jitter.
func (j SeededJitter) Fraction(key string, step int) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte(strconv.Itoa(step)))
	rng := rand.New(rand.NewSource(j.seed ^ int64(h.Sum64()))) //nolint:gosec // not used for security
	return rng.Float64()*2 - 1
}
