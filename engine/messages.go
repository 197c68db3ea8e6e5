package engine

import (
	"tycho/book"
	"tycho/pnl"
)

// MsgType tags client and server messages. Values match the wire protocol.
type MsgType uint8

const (
	MsgNewOrder  MsgType = 1
	MsgCancel    MsgType = 2
	MsgTrade     MsgType = 3
	MsgAck       MsgType = 4
	MsgTOB       MsgType = 5
	MsgL2Update  MsgType = 6
	MsgPnLUpdate MsgType = 7
)

// Side flags as carried on the wire.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

// NewOrder is a client request for a plain limit order.
type NewOrder struct {
	UserID       uint64
	Side         uint8
	Price        float64
	Quantity     uint64
	InstrumentID uint32
}

// Cancel is a client request to remove a resting order.
type Cancel struct {
	OrderID uint64
}

// ClientMessage is the tagged record carried by the input channel. The
// engine dispatches on Type; no interface sits in the hot path.
type ClientMessage struct {
	Type     MsgType
	NewOrder NewOrder
	Cancel   Cancel
}

// Ack reports the outcome of a client request. Status 0 is ok, 1 is err;
// ReqType is the original message type. UserID attributes the ack to the
// submitting principal for in-process consumers and is not serialized.
type Ack struct {
	Status  uint8
	ReqType uint8
	OrderID uint64
	UserID  uint64
}

// TOB is an aggregated top-of-book frame. Absent sides carry zero price
// and quantity.
type TOB struct {
	BidPrice    float64
	BidQuantity uint64
	AskPrice    float64
	AskQuantity uint64
}

// L2Update reports one changed price level; Quantity 0 means the level
// was removed.
type L2Update struct {
	Side     uint8
	Price    float64
	Quantity uint64
}

// ServerMessage is the tagged record carried by the output channel.
type ServerMessage struct {
	Type  MsgType
	Trade book.Trade
	Ack   Ack
	TOB   TOB
	L2    L2Update
	PnL   pnl.Update
}
