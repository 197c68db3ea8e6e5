package quant

import (
	"math"
	"runtime"
	"sync"
	"time"
)

// MCOptions configures a Monte Carlo pricing run. Workers = 0 uses one
// worker per CPU; Seed = 0 picks a time-based seed.
type MCOptions struct {
	Paths          int
	Workers        int
	Antithetic     bool
	ControlVariate bool
	Seed           uint64
	Rate           float64
}

// MCResult is the estimate with a normal-approximation 95% interval.
type MCResult struct {
	Price   float64
	StdErr  float64
	CILow   float64
	CIHigh  float64
	Samples int
}

// mcAcc holds one worker's running sums for the payoff Y and the control
// X = S_T. Workers accumulate privately; nothing is shared in the loop.
type mcAcc struct {
	sumY, sumY2  float64
	sumX, sumX2  float64
	sumYX        float64
	n            int
}

// MonteCarloTerminal prices a European option from terminal draws under
// the risk-neutral GBM, optionally with antithetic variates and an S_T
// control variate.
func MonteCarloTerminal(s0, k, sigma, t float64, opts MCOptions, typ OptionType) MCResult {
	if opts.Paths <= 0 {
		opts.Paths = 1_000_000
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Workers > opts.Paths {
		opts.Workers = opts.Paths
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}

	counts := make([]int, opts.Workers)
	for i := range counts {
		counts[i] = opts.Paths / opts.Workers
	}
	for i := 0; i < opts.Paths%opts.Workers; i++ {
		counts[i]++
	}
	if opts.Antithetic {
		// Keep draws paired within each worker.
		for i := range counts {
			if counts[i]%2 != 0 {
				counts[i]++
			}
		}
	}

	disc := math.Exp(-opts.Rate * t)
	payoff := func(st float64) float64 {
		if typ == Call {
			return math.Max(0, st-k)
		}
		return math.Max(0, k-st)
	}

	accs := make([]mcAcc, opts.Workers)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			gbm := NewGBM(s0, opts.Rate, sigma, opts.Seed+uint64(w)*0x9e3779b97f4a7c15+1)
			acc := &accs[w]
			drift := (opts.Rate - 0.5*sigma*sigma) * t
			vol := sigma * math.Sqrt(t)

			observe := func(z float64) {
				st := s0 * math.Exp(drift+vol*z)
				y := disc * payoff(st)
				acc.sumY += y
				acc.sumY2 += y * y
				acc.sumX += st
				acc.sumX2 += st * st
				acc.sumYX += y * st
				acc.n++
			}

			if opts.Antithetic {
				for i := 0; i < counts[w]; i += 2 {
					z := gbm.rng.NormFloat64()
					observe(z)
					observe(-z)
				}
			} else {
				for i := 0; i < counts[w]; i++ {
					observe(gbm.rng.NormFloat64())
				}
			}
		}(w)
	}
	wg.Wait()

	var total mcAcc
	for i := range accs {
		total.sumY += accs[i].sumY
		total.sumY2 += accs[i].sumY2
		total.sumX += accs[i].sumX
		total.sumX2 += accs[i].sumX2
		total.sumYX += accs[i].sumYX
		total.n += accs[i].n
	}

	n := float64(total.n)
	meanY := total.sumY / n
	varY := total.sumY2/n - meanY*meanY

	price := meanY
	variance := varY
	if opts.ControlVariate {
		// Control X = S_T with known risk-neutral mean s0 * e^{rT}.
		meanX := total.sumX / n
		varX := total.sumX2/n - meanX*meanX
		covYX := total.sumYX/n - meanY*meanX
		if varX > 0 {
			beta := covYX / varX
			price = meanY - beta*(meanX-s0*math.Exp(opts.Rate*t))
			variance = varY - beta*covYX
			if variance < 0 {
				variance = 0
			}
		}
	}

	stderr := math.Sqrt(variance / n)
	return MCResult{
		Price:   price,
		StdErr:  stderr,
		CILow:   price - 1.96*stderr,
		CIHigh:  price + 1.96*stderr,
		Samples: total.n,
	}
}
