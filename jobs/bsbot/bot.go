package bsbot

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"tycho/engine"
	"tycho/quant"
)

// Config for the quoting/hedging strategy. UserID attributes the bot's
// orders; the instrument ids name the option leg and its underlying.
type Config struct {
	UserID               uint64
	UnderlyingInstrument uint32
	OptionInstrument     uint32

	OptType       quant.OptionType
	Strike        float64
	ExpirySeconds float64
	Rate          float64 // annualized risk-free rate
	IV            float64 // annualized implied volatility

	Spread         float64 // absolute, around theoretical
	Qty            float64 // per-leg order size
	HedgeTolerance float64 // net delta allowed before hedging
	MinPrice       float64
	MaxPrice       float64
	UpdateInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.UserID == 0 {
		c.UserID = 9999
	}
	if c.UnderlyingInstrument == 0 {
		c.UnderlyingInstrument = 1
	}
	if c.OptionInstrument == 0 {
		c.OptionInstrument = 2
	}
	if c.Strike == 0 {
		c.Strike = 100
	}
	if c.ExpirySeconds == 0 {
		c.ExpirySeconds = 3600
	}
	if c.IV == 0 {
		c.IV = 0.20
	}
	if c.Spread == 0 {
		c.Spread = 0.02
	}
	if c.Qty == 0 {
		c.Qty = 5
	}
	if c.HedgeTolerance == 0 {
		c.HedgeTolerance = 0.1
	}
	if c.MinPrice == 0 {
		c.MinPrice = 0.0001
	}
	if c.MaxPrice == 0 {
		c.MaxPrice = 1e7
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = 200 * time.Millisecond
	}
}

// pendingOrder remembers one submitted order until its ack arrives. The
// engine acks a producer's orders in submission order, so the front of
// the queue always matches the next own ack.
type pendingOrder struct {
	instrument uint32
	side       uint8
}

// Bot quotes a two-sided market around Black–Scholes fair value and
// hedges delta in the underlying when inventory drifts past tolerance.
// Inventory is moved only by observed fills from the server stream, never
// by submissions (the hedge inventory is additionally updated
// optimistically; the trade stream remains authoritative).
type Bot struct {
	eng    *engine.Server
	stream <-chan engine.ServerMessage
	cfg    Config

	mu sync.Mutex // guards cfg.IV

	lastMid         float64
	optionInventory float64
	hedgeInventory  float64

	pending      []pendingOrder
	activeOption []uint64

	running atomic.Bool
	done    chan struct{}
}

// New creates a stopped bot reading server messages from stream.
func New(eng *engine.Server, stream <-chan engine.ServerMessage, cfg Config) *Bot {
	cfg.setDefaults()
	return &Bot{eng: eng, stream: stream, cfg: cfg}
}

// Start spawns the control loop goroutine.
func (b *Bot) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.done = make(chan struct{})
	go b.loop()
}

// Stop halts the control loop and waits for it.
func (b *Bot) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	<-b.done
}

// SetIV updates the implied volatility used for theoretical pricing. Safe
// from any goroutine.
func (b *Bot) SetIV(iv float64) {
	b.mu.Lock()
	b.cfg.IV = iv
	b.mu.Unlock()
}

// postLimitOrder submits one order and queues it for ack correlation.
// Returns false when the input channel rejected it.
func (b *Bot) postLimitOrder(instrument uint32, side uint8, price, qty float64) bool {
	if price < b.cfg.MinPrice {
		price = b.cfg.MinPrice
	}
	if price > b.cfg.MaxPrice {
		price = b.cfg.MaxPrice
	}
	q := uint64(math.Max(1, qty))
	ok := b.eng.SubmitNewOrder(engine.NewOrder{
		UserID:       b.cfg.UserID,
		InstrumentID: instrument,
		Side:         side,
		Price:        price,
		Quantity:     q,
	})
	if ok {
		b.pending = append(b.pending, pendingOrder{instrument: instrument, side: side})
	}
	return ok
}

func (b *Bot) cancelOrder(orderID uint64) {
	if orderID == 0 {
		return
	}
	b.eng.SubmitCancel(engine.Cancel{OrderID: orderID})
}

// drain consumes everything currently queued on the server stream.
func (b *Bot) drain() {
	for {
		select {
		case sm := <-b.stream:
			b.handle(sm)
		default:
			return
		}
	}
}

func (b *Bot) handle(sm engine.ServerMessage) {
	switch sm.Type {
	case engine.MsgTOB:
		switch {
		case sm.TOB.BidPrice > 0 && sm.TOB.AskPrice > 0:
			b.lastMid = 0.5 * (sm.TOB.BidPrice + sm.TOB.AskPrice)
		case sm.TOB.BidPrice > 0:
			b.lastMid = sm.TOB.BidPrice
		case sm.TOB.AskPrice > 0:
			b.lastMid = sm.TOB.AskPrice
		}

	case engine.MsgTrade:
		tr := sm.Trade
		if tr.InstrumentID == b.cfg.OptionInstrument {
			if tr.BuyUserID == b.cfg.UserID {
				b.optionInventory += float64(tr.Quantity)
			} else if tr.SellUserID == b.cfg.UserID {
				b.optionInventory -= float64(tr.Quantity)
			}
		}
		if tr.InstrumentID == b.cfg.UnderlyingInstrument {
			if tr.BuyUserID == b.cfg.UserID {
				b.hedgeInventory += float64(tr.Quantity)
			} else if tr.SellUserID == b.cfg.UserID {
				b.hedgeInventory -= float64(tr.Quantity)
			}
		}

	case engine.MsgAck:
		if sm.Ack.ReqType != uint8(engine.MsgNewOrder) || sm.Ack.UserID != b.cfg.UserID {
			return
		}
		if len(b.pending) == 0 {
			return
		}
		p := b.pending[0]
		b.pending = b.pending[1:]
		// A zero id means the order filled completely and rests nowhere.
		if sm.Ack.Status == 0 && sm.Ack.OrderID != 0 && p.instrument == b.cfg.OptionInstrument {
			b.activeOption = append(b.activeOption, sm.Ack.OrderID)
		}
	}
}

// quotes builds the clamped two-sided market around theo. Both sides are
// additionally capped at max(1, 10 S) against runaway quotes.
func (b *Bot) quotes(theo, s float64) (bid, ask float64) {
	bid = math.Max(b.cfg.MinPrice, theo-b.cfg.Spread*0.5)
	ask = math.Min(b.cfg.MaxPrice, theo+b.cfg.Spread*0.5)
	maxRel := math.Max(1, s*10)
	if bid > maxRel {
		bid = maxRel
	}
	if ask > maxRel {
		ask = maxRel
	}
	return bid, ask
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func (b *Bot) loop() {
	defer close(b.done)

	lastUpdate := time.Now()
	lastPrint := time.Now()

	for b.running.Load() {
		b.drain()

		now := time.Now()
		if now.Sub(lastUpdate) < b.cfg.UpdateInterval {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		lastUpdate = now

		s := b.lastMid
		if s <= 0 {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		tau := math.Max(1e-6, b.cfg.ExpirySeconds/365)
		b.mu.Lock()
		theo, delta := quant.BS(s, b.cfg.Strike, b.cfg.Rate, b.cfg.IV, tau, b.cfg.OptType)
		b.mu.Unlock()

		bid, ask := b.quotes(theo, s)

		// Replace the option market: cancel what rests, post fresh legs.
		for _, id := range b.activeOption {
			b.cancelOrder(id)
		}
		b.activeOption = b.activeOption[:0]

		q := math.Max(1, b.cfg.Qty)
		b.postLimitOrder(b.cfg.OptionInstrument, engine.SideBuy, bid, q)
		b.postLimitOrder(b.cfg.OptionInstrument, engine.SideSell, ask, q)

		// Delta hedge in the underlying.
		targetHedge := -delta * b.optionInventory
		need := targetHedge - b.hedgeInventory
		if math.Abs(need) > b.cfg.HedgeTolerance {
			side := engine.SideSell
			price := s - 0.01
			if need > 0 {
				side = engine.SideBuy
				price = s + 0.01
			}
			price = clamp(price, b.cfg.MinPrice, b.cfg.MaxPrice)
			hedgeQty := math.Max(1, math.Floor(math.Min(math.Abs(need), 100)))

			if b.postLimitOrder(b.cfg.UnderlyingInstrument, side, price, hedgeQty) {
				// Optimistic; the trade stream remains authoritative.
				if side == engine.SideSell {
					b.hedgeInventory -= hedgeQty
				} else {
					b.hedgeInventory += hedgeQty
				}
			}
		}

		if now.Sub(lastPrint) >= time.Second {
			lastPrint = now
			log.Printf("[bs-bot] S=%.4f theo=%.4f delta=%.4f opt_inv=%.1f hedge_inv=%.1f",
				s, theo, delta, b.optionInventory, b.hedgeInventory)
		}
	}
}
