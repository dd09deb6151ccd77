package domain

import "math/rand/v2"

// Rng abstracts randomness so tests can inject determinism.
type Rng interface {
	// Uniform returns a pseudo-random float64 in [0, 1).
	Uniform() float64
}

// MathRng is the production Rng backed by math/rand/v2.
type MathRng struct{}

// NewMathRng returns the production Rng.
func NewMathRng() MathRng { return MathRng{} }

func (MathRng) Uniform() float64 { return rand.Float64() }
