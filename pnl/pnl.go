package pnl

import (
	"math"
	"sync"
)

// Update is a point-in-time PnL snapshot for one user.
type Update struct {
	UserID     uint32
	Realized   float64
	Unrealized float64
	Position   float64
	AvgPrice   float64
	Equity     float64
}

// Engine tracks one user's signed position with a VWAP average open price,
// realizing PnL when fills reduce or flip the position and marking the
// remainder against the last observed mid.
//
// Mutators and readers are serialized by an internal mutex; the engine
// goroutine writes on fills and mid moves while any goroutine may snapshot
// with Get.
type Engine struct {
	mu sync.Mutex

	userID     uint64
	position   float64
	avgPrice   float64
	realized   float64
	unrealized float64
	lastMid    float64
}

// NewEngine creates a flat PnL engine for one user.
func NewEngine(userID uint64) *Engine {
	return &Engine{userID: userID}
}

// UserID returns the tracked principal.
func (e *Engine) UserID() uint64 { return e.userID }

// OnTrade applies one fill. isBuy is the tracked user's side of the trade.
func (e *Engine) OnTrade(isBuy bool, price float64, qty uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signedQty := float64(qty)
	if !isBuy {
		signedQty = -signedQty
	}

	// Opposite-sign fill closes existing position first.
	if e.position != 0 && e.position*signedQty < 0 {
		closeQty := math.Min(math.Abs(e.position), math.Abs(signedQty))
		if e.position > 0 {
			e.realized += (price - e.avgPrice) * closeQty
		} else {
			e.realized += (e.avgPrice - price) * closeQty
		}

		if math.Abs(signedQty) > closeQty {
			if signedQty > 0 {
				signedQty -= closeQty
			} else {
				signedQty += closeQty
			}
		} else {
			signedQty = 0
		}

		if math.Abs(e.position) <= closeQty {
			e.position = 0
			e.avgPrice = 0
		} else if e.position > 0 {
			e.position -= closeQty
		} else {
			e.position += closeQty
		}
	}

	// Residual same-sign quantity extends the position at a new VWAP.
	if signedQty != 0 {
		switch {
		case e.position == 0:
			e.avgPrice = price
			e.position = signedQty
		case (e.position > 0) == (signedQty > 0):
			newPos := e.position + signedQty
			e.avgPrice = (e.avgPrice*math.Abs(e.position) + price*math.Abs(signedQty)) / math.Abs(newPos)
			e.position = newPos
		default:
			e.position += signedQty
			if e.position == 0 {
				e.avgPrice = 0
			}
		}
	}

	e.markLocked()
}

// OnMidprice re-marks the open position against a new mid.
func (e *Engine) OnMidprice(mid float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastMid = mid
	e.markLocked()
}

func (e *Engine) markLocked() {
	switch {
	case e.position == 0:
		e.unrealized = 0
	case e.lastMid <= 0:
		// No mark yet.
	case e.position > 0:
		e.unrealized = (e.lastMid - e.avgPrice) * math.Abs(e.position)
	default:
		e.unrealized = (e.avgPrice - e.lastMid) * math.Abs(e.position)
	}
}

// Get snapshots the current state. Safe from any goroutine.
func (e *Engine) Get() Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Update{
		UserID:     uint32(e.userID),
		Realized:   e.realized,
		Unrealized: e.unrealized,
		Position:   e.position,
		AvgPrice:   e.avgPrice,
		Equity:     e.realized + e.unrealized,
	}
}
