package pnl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTripLong(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(true, 100, 10)
	e.OnTrade(false, 105, 10)

	u := e.Get()
	assert.InDelta(t, 50.0, u.Realized, 1e-9)
	assert.Zero(t, u.Position)
	assert.Zero(t, u.AvgPrice)
	assert.Zero(t, u.Unrealized)
	assert.InDelta(t, 50.0, u.Equity, 1e-9)
}

func TestRoundTripShort(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(false, 105, 10)
	e.OnTrade(true, 100, 10)

	u := e.Get()
	assert.InDelta(t, 50.0, u.Realized, 1e-9)
	assert.Zero(t, u.Position)
	assert.Zero(t, u.AvgPrice)
}

func TestUnrealizedFollowsMid(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(true, 50, 4)
	e.OnMidprice(52)

	u := e.Get()
	assert.Zero(t, u.Realized)
	assert.InDelta(t, 8.0, u.Unrealized, 1e-9)
	assert.InDelta(t, 8.0, u.Equity, 1e-9)
	assert.Equal(t, 4.0, u.Position)
	assert.Equal(t, 50.0, u.AvgPrice)
}

func TestShortUnrealized(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(false, 50, 4)
	e.OnMidprice(48)

	u := e.Get()
	assert.InDelta(t, 8.0, u.Unrealized, 1e-9)
	assert.Equal(t, -4.0, u.Position)
}

func TestVWAPAccumulation(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(true, 100, 10)
	e.OnTrade(true, 110, 10)

	u := e.Get()
	assert.Equal(t, 20.0, u.Position)
	assert.InDelta(t, 105.0, u.AvgPrice, 1e-9)
}

func TestPartialClose(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(true, 100, 10)
	e.OnTrade(false, 104, 4)

	u := e.Get()
	assert.InDelta(t, 16.0, u.Realized, 1e-9)
	assert.Equal(t, 6.0, u.Position)
	assert.InDelta(t, 100.0, u.AvgPrice, 1e-9, "partial close keeps the open VWAP")
}

func TestFlipThroughZero(t *testing.T) {
	e := NewEngine(1)
	e.OnTrade(true, 100, 10)
	e.OnTrade(false, 102, 15)

	u := e.Get()
	assert.InDelta(t, 20.0, u.Realized, 1e-9)
	assert.Equal(t, -5.0, u.Position)
	assert.InDelta(t, 102.0, u.AvgPrice, 1e-9, "the flipped remainder opens at the fill price")
}

func TestFlatPositionHasNoMark(t *testing.T) {
	e := NewEngine(1)
	e.OnMidprice(123)
	u := e.Get()
	assert.Zero(t, u.Position)
	assert.Zero(t, u.AvgPrice)
	assert.Zero(t, u.Unrealized)
}
