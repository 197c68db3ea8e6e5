package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"tycho/book"
	"tycho/infra/channel"
	"tycho/infra/metrics"
	"tycho/pnl"
)

// TradeFeed receives every executed trade for out-of-band distribution.
// Implementations must not block; the engine calls Publish on its own
// goroutine for each message's trades, after that message's book update
// and telemetry.
type TradeFeed interface {
	Publish(t book.Trade)
}

// Config sizes the engine and names its tracked principals.
type Config struct {
	Symbol       string
	InCapacity   uint64
	OutCapacity  uint64
	PoolCapacity uint32
	BatchSize    int
	IdleBackoff  time.Duration

	// Principals whose PnL is attributed and streamed.
	TrackedUserID uint64
	BotUserID     uint64
}

func (c *Config) setDefaults() {
	if c.Symbol == "" {
		c.Symbol = "FOO"
	}
	if c.InCapacity == 0 {
		c.InCapacity = 4096
	}
	if c.OutCapacity == 0 {
		c.OutCapacity = 4096
	}
	if c.PoolCapacity == 0 {
		c.PoolCapacity = 1 << 20
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1024
	}
	if c.IdleBackoff == 0 {
		c.IdleBackoff = 100 * time.Microsecond
	}
	if c.TrackedUserID == 0 {
		c.TrackedUserID = 1
	}
	if c.BotUserID == 0 {
		c.BotUserID = 9999
	}
}

// Server owns the order book, both PnL engines and the order attribution
// map, all mutated exclusively by the engine goroutine. Producers enqueue
// client messages; the single consumer of the output channel (normally the
// Demux) drains server messages.
type Server struct {
	cfg Config

	in  *channel.SPSC[ClientMessage]
	out *channel.SPSC[ServerMessage]

	// Several in-process producers share the input channel; the submit
	// mutex keeps the ring's single-producer contract intact.
	submitMu sync.Mutex

	bk        *book.Book
	userPnL   *pnl.Engine
	botPnL    *pnl.Engine
	orderUser map[uint64]uint64

	feed TradeFeed
	met  *metrics.Set

	running atomic.Bool
	done    chan struct{}
}

// NewServer builds an engine from cfg. feed and met may be nil.
func NewServer(cfg Config, feed TradeFeed, met *metrics.Set) *Server {
	cfg.setDefaults()
	return &Server{
		cfg:       cfg,
		in:        channel.NewSPSC[ClientMessage](cfg.InCapacity),
		out:       channel.NewSPSC[ServerMessage](cfg.OutCapacity),
		bk:        book.New(cfg.Symbol, cfg.PoolCapacity),
		userPnL:   pnl.NewEngine(cfg.TrackedUserID),
		botPnL:    pnl.NewEngine(cfg.BotUserID),
		orderUser: make(map[uint64]uint64),
		feed:      feed,
		met:       met,
	}
}

// Config returns the effective configuration.
func (s *Server) Config() Config { return s.cfg }

// Start spawns the engine goroutine.
func (s *Server) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.done = make(chan struct{})
	go s.loop()
}

// Stop asks the engine goroutine to exit at its next cooperative check and
// waits for it. Pending channel items are discarded.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	<-s.done
}

// SubmitNewOrder enqueues a new order. Returns false when the input
// channel is full; the producer decides whether to retry or drop.
func (s *Server) SubmitNewOrder(m NewOrder) bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	return s.in.Push(ClientMessage{Type: MsgNewOrder, NewOrder: m})
}

// SubmitCancel enqueues a cancel request.
func (s *Server) SubmitCancel(m Cancel) bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	return s.in.Push(ClientMessage{Type: MsgCancel, Cancel: m})
}

// NextServerMessage pops the next outbound message. Exactly one goroutine
// may call this.
func (s *Server) NextServerMessage(out *ServerMessage) bool {
	return s.out.Pop(out)
}

// UserPnL snapshots the tracked user's PnL.
func (s *Server) UserPnL() pnl.Update { return s.userPnL.Get() }

// BotPnL snapshots the bot's PnL.
func (s *Server) BotPnL() pnl.Update { return s.botPnL.Get() }

func (s *Server) pushOut(sm ServerMessage) {
	if !s.out.Push(sm) {
		s.met.IncDroppedTelemetry()
	}
}

// loop is the single-threaded engine: drain input in bounded batches,
// apply to the book, attribute PnL, emit diff-based telemetry.
func (s *Server) loop() {
	defer close(s.done)

	var lastTOB book.TopOfBook
	haveLastTOB := false
	trades := make([]book.Trade, 0, 8)

	for s.running.Load() {
		processed := 0

		for processed < s.cfg.BatchSize {
			var cm ClientMessage
			if !s.in.Pop(&cm) {
				break
			}
			processed++

			prevBids := s.bk.SnapshotBids()
			prevAsks := s.bk.SnapshotAsks()
			trades = trades[:0]

			switch cm.Type {
			case MsgNewOrder:
				trades = s.applyNewOrder(cm.NewOrder, trades)
			case MsgCancel:
				s.applyCancel(cm.Cancel)
			}

			s.emitTOB(&lastTOB, &haveLastTOB)
			s.emitL2Diffs(prevBids, s.bk.SnapshotBids(), SideBuy)
			s.emitL2Diffs(prevAsks, s.bk.SnapshotAsks(), SideSell)

			if s.feed != nil {
				for _, tr := range trades {
					s.feed.Publish(tr)
				}
			}
		}

		s.met.SetDepths(s.in.ApproxSize(), s.out.ApproxSize())

		if processed == 0 {
			time.Sleep(s.cfg.IdleBackoff)
		}
	}
}

// applyNewOrder hands the order to the book, records attribution for any
// resting residual, attributes PnL per fill and emits TRADE and ACK
// messages.
func (s *Server) applyNewOrder(m NewOrder, trades []book.Trade) []book.Trade {
	s.met.IncOrders()

	side := book.Buy
	if m.Side == SideSell {
		side = book.Sell
	}
	o := book.Order{
		UserID:       m.UserID,
		Side:         side,
		Price:        m.Price,
		Quantity:     m.Quantity,
		InstrumentID: m.InstrumentID,
	}

	assigned, trades := s.bk.SubmitLimitOrder(o, trades)
	if assigned != 0 {
		s.orderUser[assigned] = m.UserID
	}
	s.met.AddTrades(len(trades))

	for i := range trades {
		s.attributeTrade(&m, &trades[i])
	}
	for i := range trades {
		s.pushOut(ServerMessage{Type: MsgTrade, Trade: trades[i]})
	}
	s.pushOut(ServerMessage{Type: MsgAck, Ack: Ack{
		Status:  0,
		ReqType: uint8(MsgNewOrder),
		OrderID: assigned,
		UserID:  m.UserID,
	}})

	// Attribution entries for resting orders consumed by these fills are
	// no longer reachable; drop them so the map tracks only live ids.
	for i := range trades {
		s.dropIfGone(trades[i].BuyOrderID)
		s.dropIfGone(trades[i].SellOrderID)
	}
	return trades
}

func (s *Server) dropIfGone(orderID uint64) {
	if _, ok := s.orderUser[orderID]; ok && !s.bk.Contains(orderID) {
		delete(s.orderUser, orderID)
	}
}

// attributeTrade resolves which tracked principals took part in one fill
// and streams their PnL. The incoming order's user is known directly; the
// resting side resolves through the attribution map.
func (s *Server) attributeTrade(m *NewOrder, tr *book.Trade) {
	userIsBuy, userIsSell := false, false
	botIsBuy, botIsSell := false, false

	if m.UserID == s.cfg.TrackedUserID {
		if m.Side == SideBuy {
			userIsBuy = true
		} else {
			userIsSell = true
		}
	}
	if m.UserID == s.cfg.BotUserID {
		if m.Side == SideBuy {
			botIsBuy = true
		} else {
			botIsSell = true
		}
	}

	if u, ok := s.orderUser[tr.BuyOrderID]; ok {
		if u == s.cfg.TrackedUserID {
			userIsBuy, userIsSell = true, false
		}
		if u == s.cfg.BotUserID {
			botIsBuy, botIsSell = true, false
		}
	}
	if u, ok := s.orderUser[tr.SellOrderID]; ok {
		if u == s.cfg.TrackedUserID {
			userIsSell, userIsBuy = true, false
		}
		if u == s.cfg.BotUserID {
			botIsSell, botIsBuy = true, false
		}
	}

	if userIsBuy || userIsSell {
		s.userPnL.OnTrade(userIsBuy, tr.Price, tr.Quantity)
		s.pushOut(ServerMessage{Type: MsgPnLUpdate, PnL: s.userPnL.Get()})
	}
	if botIsBuy || botIsSell {
		s.botPnL.OnTrade(botIsBuy, tr.Price, tr.Quantity)
		s.pushOut(ServerMessage{Type: MsgPnLUpdate, PnL: s.botPnL.Get()})
	}
}

func (s *Server) applyCancel(m Cancel) {
	s.met.IncCancels()

	ok := s.bk.CancelOrder(m.OrderID)
	userID := uint64(0)
	if ok {
		userID = s.orderUser[m.OrderID]
		delete(s.orderUser, m.OrderID)
	}
	status := uint8(0)
	if !ok {
		status = 1
	}
	s.pushOut(ServerMessage{Type: MsgAck, Ack: Ack{
		Status:  status,
		ReqType: uint8(MsgCancel),
		OrderID: m.OrderID,
		UserID:  userID,
	}})
}

// emitTOB emits a TOB frame when any field changed and re-marks both PnL
// engines against the new mid.
func (s *Server) emitTOB(last *book.TopOfBook, haveLast *bool) {
	tob := s.bk.TopOfBook()
	if *haveLast && tob == *last {
		return
	}
	*last = tob
	*haveLast = true

	var sm ServerMessage
	sm.Type = MsgTOB
	if tob.HasBid {
		sm.TOB.BidPrice = tob.BidPrice
		sm.TOB.BidQuantity = tob.BidQuantity
	}
	if tob.HasAsk {
		sm.TOB.AskPrice = tob.AskPrice
		sm.TOB.AskQuantity = tob.AskQuantity
	}
	s.pushOut(sm)

	mid := 0.0
	switch {
	case tob.HasBid && tob.HasAsk:
		mid = 0.5 * (tob.BidPrice + tob.AskPrice)
	case tob.HasBid:
		mid = tob.BidPrice
	case tob.HasAsk:
		mid = tob.AskPrice
	}
	if mid > 0 {
		s.userPnL.OnMidprice(mid)
		s.pushOut(ServerMessage{Type: MsgPnLUpdate, PnL: s.userPnL.Get()})
		s.botPnL.OnMidprice(mid)
		s.pushOut(ServerMessage{Type: MsgPnLUpdate, PnL: s.botPnL.Get()})
	}
}

// emitL2Diffs emits one L2_UPDATE per price whose aggregate quantity
// changed between snapshots; quantity 0 signals level removal.
func (s *Server) emitL2Diffs(before, after []book.PriceQty, sideFlag uint8) {
	prev := make(map[float64]uint64, len(before))
	for _, p := range before {
		prev[p.Price] = p.Quantity
	}
	next := make(map[float64]uint64, len(after))
	for _, p := range after {
		next[p.Price] = p.Quantity
	}

	for price, oldQ := range prev {
		if newQ := next[price]; newQ != oldQ {
			s.pushOut(ServerMessage{Type: MsgL2Update, L2: L2Update{
				Side: sideFlag, Price: price, Quantity: newQ,
			}})
		}
	}
	for price, newQ := range next {
		if _, seen := prev[price]; !seen {
			s.pushOut(ServerMessage{Type: MsgL2Update, L2: L2Update{
				Side: sideFlag, Price: price, Quantity: newQ,
			}})
		}
	}
}
