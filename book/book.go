package book

import (
	"github.com/tidwall/btree"

	"tycho/infra/memory"
	"tycho/infra/sequence"
)

// orderRef locates a resting order: side, level price, slab index.
type orderRef struct {
	side  Side
	price float64
	idx   uint32
}

// Book is an in-memory limit order book with price-time priority. Price
// levels live in ordered maps (asks ascending, bids read from the top);
// orders at a level form an intrusive FIFO chain of slab indices. Not safe
// for concurrent use: the engine goroutine owns it exclusively.
type Book struct {
	symbol string

	bids  *btree.Map[float64, *Level]
	asks  *btree.Map[float64, *Level]
	index map[uint64]orderRef
	pool  *memory.Slab[node]

	orderIDs *sequence.Sequencer
	tradeIDs *sequence.Sequencer
	ticks    *sequence.Sequencer
}

// New creates an empty book for one instrument symbol. The pool capacity
// bounds the number of simultaneously resting orders; exhaustion is fatal.
func New(symbol string, poolCapacity uint32) *Book {
	return &Book{
		symbol:   symbol,
		bids:     btree.NewMap[float64, *Level](32),
		asks:     btree.NewMap[float64, *Level](32),
		index:    make(map[uint64]orderRef),
		pool:     memory.NewSlab[node](poolCapacity),
		orderIDs: sequence.New(0),
		tradeIDs: sequence.New(0),
		ticks:    sequence.New(0),
	}
}

// Symbol returns the instrument symbol this book matches.
func (b *Book) Symbol() string { return b.symbol }

// Size returns the number of resting orders.
func (b *Book) Size() int { return len(b.index) }

// Contains reports whether orderID is resting.
func (b *Book) Contains(orderID uint64) bool {
	_, ok := b.index[orderID]
	return ok
}

// SubmitLimitOrder matches order against the opposite side and rests any
// residual quantity. Fills are appended to trades, which is returned so
// callers can reuse its backing array across submissions. The returned id
// is the residual's resting order id, or 0 when the order fully filled.
// Zero-quantity orders are rejected silently.
func (b *Book) SubmitLimitOrder(order Order, trades []Trade) (uint64, []Trade) {
	if order.Quantity == 0 {
		return 0, trades
	}
	if order.OrderID == 0 {
		order.OrderID = b.orderIDs.Next()
	}
	if order.TsNs == 0 {
		order.TsNs = b.ticks.Next()
	}
	order.Remaining = order.Quantity

	if order.Side == Buy {
		trades = b.matchBuy(&order, trades)
	} else {
		trades = b.matchSell(&order, trades)
	}

	if order.Quantity > 0 {
		b.rest(&order)
		return order.OrderID, trades
	}
	return 0, trades
}

// CancelOrder removes a resting order. Returns false when the id is
// unknown; that is an observable condition, not an error.
func (b *Book) CancelOrder(orderID uint64) bool {
	ref, ok := b.index[orderID]
	if !ok {
		return false
	}
	delete(b.index, orderID)

	side := b.bids
	if ref.side == Sell {
		side = b.asks
	}
	level, ok := side.Get(ref.price)
	if !ok {
		return false
	}
	b.unlink(level, ref.idx)
	b.pool.Release(ref.idx)
	if level.head == memory.NoIndex {
		side.Delete(ref.price)
	}
	return true
}

// TopOfBook aggregates the best level of each side.
func (b *Book) TopOfBook() TopOfBook {
	var tob TopOfBook
	if price, level, ok := b.bids.Max(); ok {
		tob.HasBid = true
		tob.BidPrice = price
		tob.BidQuantity = b.levelQuantity(level)
	}
	if price, level, ok := b.asks.Min(); ok {
		tob.HasAsk = true
		tob.AskPrice = price
		tob.AskQuantity = b.levelQuantity(level)
	}
	return tob
}

// SnapshotBids returns (price, aggregate quantity) per bid level, best
// first. Empty levels are never present in the maps, so none are emitted.
func (b *Book) SnapshotBids() []PriceQty {
	out := make([]PriceQty, 0, b.bids.Len())
	b.bids.Reverse(func(price float64, level *Level) bool {
		out = append(out, PriceQty{Price: price, Quantity: b.levelQuantity(level)})
		return true
	})
	return out
}

// SnapshotAsks returns (price, aggregate quantity) per ask level, best
// first.
func (b *Book) SnapshotAsks() []PriceQty {
	out := make([]PriceQty, 0, b.asks.Len())
	b.asks.Scan(func(price float64, level *Level) bool {
		out = append(out, PriceQty{Price: price, Quantity: b.levelQuantity(level)})
		return true
	})
	return out
}

func (b *Book) levelQuantity(level *Level) uint64 {
	var sum uint64
	for idx := level.head; idx != memory.NoIndex; idx = b.pool.At(idx).Next {
		sum += b.pool.At(idx).Quantity
	}
	return sum
}

// matchBuy crosses an incoming buy against best asks while marketable.
func (b *Book) matchBuy(incoming *Order, trades []Trade) []Trade {
	for incoming.Quantity > 0 {
		askPrice, level, ok := b.asks.Min()
		if !ok || askPrice > incoming.Price {
			break
		}

		idx := level.head
		for idx != memory.NoIndex && incoming.Quantity > 0 {
			resting := b.pool.At(idx)
			next := resting.Next

			qty := min(incoming.Quantity, resting.Quantity)
			trades = append(trades, Trade{
				TradeID:      b.tradeIDs.Next(),
				BuyOrderID:   incoming.OrderID,
				SellOrderID:  resting.OrderID,
				Price:        askPrice,
				Quantity:     qty,
				InstrumentID: incoming.InstrumentID,
				BuyUserID:    incoming.UserID,
				SellUserID:   resting.UserID,
				TsNs:         incoming.TsNs,
			})

			incoming.Quantity -= qty
			resting.Quantity -= qty
			if resting.Quantity == 0 {
				delete(b.index, resting.OrderID)
				b.unlink(level, idx)
				b.pool.Release(idx)
			}
			idx = next
		}

		if level.head == memory.NoIndex {
			b.asks.Delete(askPrice)
		}
	}
	return trades
}

// matchSell crosses an incoming sell against best bids while marketable.
func (b *Book) matchSell(incoming *Order, trades []Trade) []Trade {
	for incoming.Quantity > 0 {
		bidPrice, level, ok := b.bids.Max()
		if !ok || bidPrice < incoming.Price {
			break
		}

		idx := level.head
		for idx != memory.NoIndex && incoming.Quantity > 0 {
			resting := b.pool.At(idx)
			next := resting.Next

			qty := min(incoming.Quantity, resting.Quantity)
			trades = append(trades, Trade{
				TradeID:      b.tradeIDs.Next(),
				BuyOrderID:   resting.OrderID,
				SellOrderID:  incoming.OrderID,
				Price:        bidPrice,
				Quantity:     qty,
				InstrumentID: incoming.InstrumentID,
				BuyUserID:    resting.UserID,
				SellUserID:   incoming.UserID,
				TsNs:         incoming.TsNs,
			})

			incoming.Quantity -= qty
			resting.Quantity -= qty
			if resting.Quantity == 0 {
				delete(b.index, resting.OrderID)
				b.unlink(level, idx)
				b.pool.Release(idx)
			}
			idx = next
		}

		if level.head == memory.NoIndex {
			b.bids.Delete(bidPrice)
		}
	}
	return trades
}

// rest places the residual on its side's level, creating the level on first
// use, and indexes the order id.
func (b *Book) rest(o *Order) {
	idx := b.pool.Alloc()
	n := b.pool.At(idx)
	*n = node{
		OrderID:      o.OrderID,
		UserID:       o.UserID,
		Side:         o.Side,
		Price:        o.Price,
		Quantity:     o.Quantity,
		InstrumentID: o.InstrumentID,
		TsNs:         o.TsNs,
		Prev:         memory.NoIndex,
		Next:         memory.NoIndex,
		Active:       true,
	}

	side := b.bids
	if o.Side == Sell {
		side = b.asks
	}
	level, ok := side.Get(o.Price)
	if !ok {
		level = &Level{Price: o.Price, head: memory.NoIndex, tail: memory.NoIndex}
		side.Set(o.Price, level)
	}
	b.appendToLevel(level, idx)
	b.index[o.OrderID] = orderRef{side: o.Side, price: o.Price, idx: idx}
}

// appendToLevel links the node at the tail, preserving FIFO order.
func (b *Book) appendToLevel(level *Level, idx uint32) {
	n := b.pool.At(idx)
	n.Prev = level.tail
	n.Next = memory.NoIndex
	if level.tail != memory.NoIndex {
		b.pool.At(level.tail).Next = idx
	}
	level.tail = idx
	if level.head == memory.NoIndex {
		level.head = idx
	}
}

// unlink removes the node from its level chain, maintaining head/tail.
func (b *Book) unlink(level *Level, idx uint32) {
	n := b.pool.At(idx)
	if n.Prev != memory.NoIndex {
		b.pool.At(n.Prev).Next = n.Next
	}
	if n.Next != memory.NoIndex {
		b.pool.At(n.Next).Prev = n.Prev
	}
	if level.head == idx {
		level.head = n.Next
	}
	if level.tail == idx {
		level.tail = n.Prev
	}
	n.Prev, n.Next = memory.NoIndex, memory.NoIndex
}
