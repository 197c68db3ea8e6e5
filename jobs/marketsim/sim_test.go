package marketsim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceIsDeterministicUnderSeed(t *testing.T) {
	cfg := Config{S0: 100, Sigma: 0.2, Dt: 0.15, Tick: 0.01, Seed: 42}
	a := New(nil, cfg)
	b := New(nil, cfg)

	for i := 0; i < 100; i++ {
		require.Equal(t, a.advance(), b.advance())
	}
}

func TestAdvanceStaysPositiveAndOnTick(t *testing.T) {
	m := New(nil, Config{S0: 100, Sigma: 0.8, Dt: 0.5, Tick: 0.01, Seed: 7})
	for i := 0; i < 1000; i++ {
		mid := m.advance()
		require.Greater(t, mid, 0.0)
		ticks := mid / 0.01
		assert.InDelta(t, math.Round(ticks), ticks, 1e-6, "mid is tick-quantized")
	}
}

func TestMeanReversionPullsTowardLevel(t *testing.T) {
	// Zero volatility isolates the reversion term: far from the level the
	// process must step toward it.
	m := New(nil, Config{S0: 200, Sigma: 1e-12, Dt: 0.1, Tick: 0.01, MeanLevel: 100, Kappa: 1, Seed: 3})
	prev := 200.0
	for i := 0; i < 50; i++ {
		mid := m.advance()
		require.Less(t, mid, prev, "price decays toward the mean level")
		prev = mid
	}
	assert.Greater(t, prev, 100.0)
}

func TestRandomQtyRange(t *testing.T) {
	m := New(nil, Config{Seed: 11})
	for i := 0; i < 1000; i++ {
		q := m.randomQty()
		require.GreaterOrEqual(t, q, uint64(1))
		require.LessOrEqual(t, q, uint64(20))
	}
}

func TestConfigDefaults(t *testing.T) {
	m := New(nil, Config{})
	assert.Equal(t, 100.0, m.cfg.S0)
	assert.Equal(t, 0.01, m.cfg.Tick)
	assert.Equal(t, 100.0, m.cfg.MeanLevel)
	assert.Equal(t, 1.0, m.cfg.Kappa)
	assert.NotZero(t, m.cfg.Seed)
}
