package marketsim

import (
	"log"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"tycho/engine"
)

// Config drives the synthetic flow producer. A Seed of 0 picks a
// time-based seed; any other seed makes the flow deterministic.
type Config struct {
	UserID       uint64
	InstrumentID uint32

	S0        float64 // starting price
	Sigma     float64 // volatility of the log process, scaled by sqrt(Dt)
	Dt        float64 // step, seconds
	Tick      float64 // price grid
	MeanLevel float64 // price level; its log is the reversion target
	Kappa     float64 // reversion speed

	Seed uint64
}

func (c *Config) setDefaults() {
	if c.S0 == 0 {
		c.S0 = 100
	}
	if c.Sigma == 0 {
		c.Sigma = 0.20
	}
	if c.Dt == 0 {
		c.Dt = 0.15
	}
	if c.Tick == 0 {
		c.Tick = 0.01
	}
	if c.MeanLevel == 0 {
		c.MeanLevel = 100
	}
	if c.Kappa == 0 {
		c.Kappa = 1.0
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
}

// Simulator produces synthetic two-sided and crossing order flow around a
// mean-reverting log-price process, guaranteeing both standing depth and
// trades.
type Simulator struct {
	eng *engine.Server
	cfg Config

	s   float64
	rng *rand.Rand

	running atomic.Bool
	done    chan struct{}
}

// New creates a stopped simulator.
func New(eng *engine.Server, cfg Config) *Simulator {
	cfg.setDefaults()
	return &Simulator{
		eng: eng,
		cfg: cfg,
		s:   cfg.S0,
		rng: rand.New(rand.NewSource(int64(cfg.Seed))),
	}
}

// Start spawns the producer goroutine.
func (m *Simulator) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.done = make(chan struct{})
	go m.loop()
}

// Stop halts the producer and waits for it.
func (m *Simulator) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	<-m.done
}

// advance steps the Ornstein–Uhlenbeck log-price process and returns the
// new tick-quantized mid, always positive.
func (m *Simulator) advance() float64 {
	z := m.rng.NormFloat64()

	logS := math.Log(math.Max(m.s, m.cfg.Tick))
	logMean := math.Log(m.cfg.MeanLevel)
	logS += m.cfg.Kappa*(logMean-logS)*m.cfg.Dt + m.cfg.Sigma*math.Sqrt(m.cfg.Dt)*z
	m.s = math.Exp(logS)

	mid := m.roundToTick(m.s)
	if mid <= 0 {
		mid = m.cfg.Tick
	}
	return mid
}

func (m *Simulator) roundToTick(x float64) float64 {
	return math.Round(x/m.cfg.Tick) * m.cfg.Tick
}

func (m *Simulator) randomQty() uint64 {
	return uint64(1 + m.rng.Intn(20))
}

func (m *Simulator) send(side uint8, price float64, qty uint64) {
	ok := m.eng.SubmitNewOrder(engine.NewOrder{
		UserID:       m.cfg.UserID,
		InstrumentID: m.cfg.InstrumentID,
		Side:         side,
		Price:        price,
		Quantity:     qty,
	})
	if !ok {
		log.Printf("[sim] input channel full, dropping %s %d@%.2f", sideName(side), qty, price)
	}
}

func sideName(side uint8) string {
	if side == engine.SideBuy {
		return "buy"
	}
	return "sell"
}

func (m *Simulator) loop() {
	defer close(m.done)

	for m.running.Load() {
		mid := m.advance()

		// Passive depth around mid.
		passiveBid := m.roundToTick(mid - 0.5)
		passiveAsk := m.roundToTick(mid + 0.5)
		if passiveBid > 0 {
			m.send(engine.SideBuy, passiveBid, m.randomQty())
		}
		m.send(engine.SideSell, passiveAsk, m.randomQty())

		// Crossing pair near mid so trades always print.
		aggressiveBid := m.roundToTick(mid + 0.05)
		aggressiveAsk := m.roundToTick(mid - 0.05)
		if aggressiveAsk < aggressiveBid {
			q := m.randomQty()
			m.send(engine.SideBuy, aggressiveBid, q)
			m.send(engine.SideSell, aggressiveAsk, q)
		}

		time.Sleep(time.Duration(m.cfg.Dt * float64(time.Second)))
	}
}
