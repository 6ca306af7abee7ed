package core

import (
	"pgregory.net/rand"
)

// RandomSampler wraps a pgregory.net/rand generator
type RandomSampler struct {
	random *rand.Rand
}

// NewRandomSampler creates a sampler from a generator
func NewRandomSampler(random *rand.Rand) *RandomSampler {
	return &RandomSampler{random: random}
}

// NewRaySampler returns the random stream owned by one ray of a batch.
// Streams are keyed by the global ray index, so the numbers a ray sees do not
// depend on how the batch was split into chunks.
func NewRaySampler(seed uint64, rayIndex int) *RandomSampler {
	return &RandomSampler{random: rand.New(seed, uint64(rayIndex))}
}

// Get1D returns a random float64 in [0, 1)
func (r *RandomSampler) Get1D() float64 {
	return r.random.Float64()
}

// GetNormal returns a standard normal sample
func (r *RandomSampler) GetNormal() float64 {
	return r.random.NormFloat64()
}

// ConstantSampler returns the same values on every call. Useful in tests.
type ConstantSampler struct {
	Value  float64
	Normal float64
}

func (c ConstantSampler) Get1D() float64     { return c.Value }
func (c ConstantSampler) GetNormal() float64 { return c.Normal }
