// Package statmath holds the probability-distribution sampling primitives
// shared by the tuner, bandit and meta components: Box–Muller normals,
// Marsaglia–Tsang gammas, and Beta via the gamma ratio. Kept as a
// standalone package because all three need identical, tested sampling
// behavior and none owns the others.
package statmath

import (
	"math"

	"github.com/tutu-network/govcore/internal/domain"
)

// StdNormal draws a standard normal variate via Box–Muller, consuming
// two uniforms from rng per call. The cached second value from the
// transform is not kept across calls — neither the tuner nor the bandit
// samples in a hot enough loop to need it.
func StdNormal(rng domain.Rng) float64 {
	u1 := nonZeroUniform(rng)
	u2 := rng.Uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// GammaSample draws from Gamma(k, 1) using Marsaglia–Tsang for k >= 1,
// and the boost trick (Gamma(k+1)·U^{1/k}) for 0 < k < 1.
func GammaSample(rng domain.Rng, k float64) float64 {
	if k < 1 {
		u := nonZeroUniform(rng)
		return GammaSample(rng, k+1) * math.Pow(u, 1/k)
	}

	d := k - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		x := StdNormal(rng)
		v := 1 + c*x
		v = v * v * v
		if v <= 0 {
			continue
		}
		u := nonZeroUniform(rng)
		x2 := x * x
		if u < 1-0.0331*x2*x2 {
			return d * v
		}
		if math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// BetaSample draws from Beta(alpha, beta) as X/(X+Y) with X ~ Gamma(alpha),
// Y ~ Gamma(beta).
func BetaSample(rng domain.Rng, alpha, beta float64) float64 {
	x := GammaSample(rng, alpha)
	y := GammaSample(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

func nonZeroUniform(rng domain.Rng) float64 {
	u := rng.Uniform()
	for u <= 1e-12 {
		u = rng.Uniform()
	}
	return u
}
