// Package rng provides the injectable random source every stochastic part of the
// simulation draws from. Nothing in the engine touches global randomness.
package rng

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Source yields uniform values in [0,1).
type Source interface {
	Float64() float64
}

// Func adapts a plain function to Source.
type Func func() float64

func (f Func) Float64() float64 { return f() }

// Constant returns a Source that always yields v (clamped into [0,1)).
func Constant(v float64) Source {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	if v >= 1 {
		v = math.Nextafter(1, 0)
	}
	return Func(func() float64 { return v })
}

// Sequence replays vals in order and then repeats the last one.
func Sequence(vals ...float64) Source {
	i := 0
	return Func(func() float64 {
		if len(vals) == 0 {
			return 0
		}
		v := vals[i]
		if i < len(vals)-1 {
			i++
		}
		return v
	})
}

// Seeded is a PCG-backed Source whose state can be captured and restored.
type Seeded struct {
	pcg *rand.PCG
	r   *rand.Rand
}

// NewSeeded builds a deterministic source from a seed.
func NewSeeded(seed uint64) *Seeded {
	pcg := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Seeded{pcg: pcg, r: rand.New(pcg)}
}

func (s *Seeded) Float64() float64 { return s.r.Float64() }

// State returns the encoded generator state.
func (s *Seeded) State() ([]byte, error) {
	b, err := s.pcg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("rng state: %w", err)
	}
	return b, nil
}

// Restore rewinds the generator to a state captured by State.
func (s *Seeded) Restore(state []byte) error {
	if err := s.pcg.UnmarshalBinary(state); err != nil {
		return fmt.Errorf("rng restore: %w", err)
	}
	return nil
}

// Gaussian draws a standard normal sample with Box-Muller, consuming two uniforms.
func Gaussian(src Source) float64 {
	u1 := 1 - src.Float64() // (0,1]
	u2 := src.Float64()
	if u1 <= 0 || math.IsNaN(u1) {
		u1 = math.SmallestNonzeroFloat64
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return z
}

// Chance reports whether a draw lands below p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Pick returns an index in [0,n) or -1 when n is zero.
func Pick(src Source, n int) int {
	if n <= 0 {
		return -1
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
