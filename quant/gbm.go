package quant

import (
	"math"
	"math/rand"
	"time"
)

// GBM samples geometric Brownian motion paths dS = mu S dt + sigma S dW.
// A seed of 0 picks a time-based seed; any other seed is deterministic.
type GBM struct {
	s0    float64
	mu    float64
	sigma float64
	rng   *rand.Rand
}

// NewGBM creates a sampler anchored at s0.
func NewGBM(s0, mu, sigma float64, seed uint64) *GBM {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &GBM{
		s0:    s0,
		mu:    mu,
		sigma: sigma,
		rng:   rand.New(rand.NewSource(int64(seed))),
	}
}

// Reseed resets the RNG. A seed of 0 picks a time-based seed.
func (g *GBM) Reseed(seed uint64) {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	g.rng = rand.New(rand.NewSource(int64(seed)))
}

// SampleTerminal draws one terminal value S_T for horizon T years.
func (g *GBM) SampleTerminal(t float64) float64 {
	z := g.rng.NormFloat64()
	drift := (g.mu - 0.5*g.sigma*g.sigma) * t
	vol := g.sigma * math.Sqrt(t)
	return g.s0 * math.Exp(drift+vol*z)
}

// SamplePath draws a path of steps increments over horizon T, including
// the anchor as the first element.
func (g *GBM) SamplePath(t float64, steps int) []float64 {
	path := make([]float64, 0, steps+1)
	path = append(path, g.s0)
	if steps <= 0 {
		return path
	}

	dt := t / float64(steps)
	driftDt := (g.mu - 0.5*g.sigma*g.sigma) * dt
	volSqrtDt := g.sigma * math.Sqrt(dt)

	s := g.s0
	for i := 0; i < steps; i++ {
		z := g.rng.NormFloat64()
		s *= math.Exp(driftDt + volSqrtDt*z)
		path = append(path, s)
	}
	return path
}

// SampleTerminalBatch draws n independent terminal values for horizon T.
func (g *GBM) SampleTerminalBatch(n int, t float64) []float64 {
	out := make([]float64, 0, n)
	drift := (g.mu - 0.5*g.sigma*g.sigma) * t
	vol := g.sigma * math.Sqrt(t)
	for i := 0; i < n; i++ {
		z := g.rng.NormFloat64()
		out = append(out, g.s0*math.Exp(drift+vol*z))
	}
	return out
}
