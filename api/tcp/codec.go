package tcp

import (
	"encoding/binary"
	"errors"
	"math"

	"tycho/engine"
)

// MaxFrameSize is the sanity cap on client frame payloads. A length
// header beyond it closes the connection.
const MaxFrameSize = 10 * 1024 * 1024

var (
	// ErrShortPayload marks a truncated client payload.
	ErrShortPayload = errors.New("tcp: short payload")
	// ErrUnknownType marks an unrecognized client message type.
	ErrUnknownType = errors.New("tcp: unknown client message type")
)

func appendU64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func appendF64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}

// EncodeServerMessage returns the framed wire bytes for m: a 4-byte
// big-endian payload length followed by the payload.
func EncodeServerMessage(m *engine.ServerMessage) []byte {
	payload := appendServerPayload(make([]byte, 0, 64), m)
	framed := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(payload)), uint32(len(payload)))
	return append(framed, payload...)
}

func appendServerPayload(b []byte, m *engine.ServerMessage) []byte {
	b = append(b, byte(m.Type))
	switch m.Type {
	case engine.MsgTrade:
		t := &m.Trade
		b = appendU64(b, t.TradeID)
		b = appendU64(b, t.BuyOrderID)
		b = appendU64(b, t.BuyUserID)
		b = appendU64(b, t.SellOrderID)
		b = appendU64(b, t.SellUserID)
		b = appendF64(b, t.Price)
		b = appendU64(b, t.Quantity)
	case engine.MsgAck:
		b = append(b, m.Ack.Status, m.Ack.ReqType)
		b = appendU64(b, m.Ack.OrderID)
	case engine.MsgTOB:
		b = appendF64(b, m.TOB.BidPrice)
		b = appendU64(b, m.TOB.BidQuantity)
		b = appendF64(b, m.TOB.AskPrice)
		b = appendU64(b, m.TOB.AskQuantity)
	case engine.MsgL2Update:
		b = append(b, m.L2.Side)
		b = appendF64(b, m.L2.Price)
		b = appendU64(b, m.L2.Quantity)
	case engine.MsgPnLUpdate:
		b = binary.BigEndian.AppendUint32(b, m.PnL.UserID)
		b = appendF64(b, m.PnL.Realized)
		b = appendF64(b, m.PnL.Unrealized)
		b = appendF64(b, m.PnL.Position)
		b = appendF64(b, m.PnL.AvgPrice)
		b = appendF64(b, m.PnL.Equity)
	}
	return b
}

// DecodeClientPayload parses one unframed client payload into the tagged
// client record.
func DecodeClientPayload(payload []byte) (engine.ClientMessage, error) {
	var cm engine.ClientMessage
	if len(payload) == 0 {
		return cm, ErrShortPayload
	}

	switch engine.MsgType(payload[0]) {
	case engine.MsgNewOrder:
		if len(payload) < 1+8+1+8+8 {
			return cm, ErrShortPayload
		}
		cm.Type = engine.MsgNewOrder
		cm.NewOrder.UserID = binary.BigEndian.Uint64(payload[1:9])
		cm.NewOrder.Side = payload[9]
		cm.NewOrder.Price = math.Float64frombits(binary.BigEndian.Uint64(payload[10:18]))
		cm.NewOrder.Quantity = binary.BigEndian.Uint64(payload[18:26])
		return cm, nil

	case engine.MsgCancel:
		if len(payload) < 1+8 {
			return cm, ErrShortPayload
		}
		cm.Type = engine.MsgCancel
		cm.Cancel.OrderID = binary.BigEndian.Uint64(payload[1:9])
		return cm, nil

	default:
		return cm, ErrUnknownType
	}
}
