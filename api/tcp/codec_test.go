package tcp

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tycho/book"
	"tycho/engine"
	"tycho/pnl"
)

func frameOf(t *testing.T, b []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(b), 4)
	length := binary.BigEndian.Uint32(b[:4])
	require.Equal(t, int(length), len(b)-4)
	return b[4:]
}

func TestEncodeTradeFrame(t *testing.T) {
	m := engine.ServerMessage{Type: engine.MsgTrade, Trade: book.Trade{
		TradeID:     7,
		BuyOrderID:  11,
		SellOrderID: 12,
		BuyUserID:   1,
		SellUserID:  2,
		Price:       100.25,
		Quantity:    9,
	}}
	payload := frameOf(t, EncodeServerMessage(&m))

	require.Len(t, payload, 1+5*8+8+8)
	assert.Equal(t, byte(engine.MsgTrade), payload[0])
	assert.Equal(t, uint64(7), binary.BigEndian.Uint64(payload[1:9]))
	assert.Equal(t, uint64(11), binary.BigEndian.Uint64(payload[9:17]))
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(payload[17:25]))
	assert.Equal(t, uint64(12), binary.BigEndian.Uint64(payload[25:33]))
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(payload[33:41]))
	assert.Equal(t, 100.25, math.Float64frombits(binary.BigEndian.Uint64(payload[41:49])))
	assert.Equal(t, uint64(9), binary.BigEndian.Uint64(payload[49:57]))
}

func TestEncodeAckFrame(t *testing.T) {
	m := engine.ServerMessage{Type: engine.MsgAck, Ack: engine.Ack{
		Status:  1,
		ReqType: uint8(engine.MsgCancel),
		OrderID: 55,
		UserID:  9999, // engine-internal, must not reach the wire
	}}
	payload := frameOf(t, EncodeServerMessage(&m))

	require.Len(t, payload, 1+1+1+8)
	assert.Equal(t, byte(engine.MsgAck), payload[0])
	assert.Equal(t, byte(1), payload[1])
	assert.Equal(t, byte(engine.MsgCancel), payload[2])
	assert.Equal(t, uint64(55), binary.BigEndian.Uint64(payload[3:11]))
}

func TestEncodeTOBFrame(t *testing.T) {
	m := engine.ServerMessage{Type: engine.MsgTOB, TOB: engine.TOB{
		BidPrice: 99.5, BidQuantity: 4, AskPrice: 100.5, AskQuantity: 6,
	}}
	payload := frameOf(t, EncodeServerMessage(&m))

	require.Len(t, payload, 1+8+8+8+8)
	assert.Equal(t, 99.5, math.Float64frombits(binary.BigEndian.Uint64(payload[1:9])))
	assert.Equal(t, uint64(4), binary.BigEndian.Uint64(payload[9:17]))
	assert.Equal(t, 100.5, math.Float64frombits(binary.BigEndian.Uint64(payload[17:25])))
	assert.Equal(t, uint64(6), binary.BigEndian.Uint64(payload[25:33]))
}

func TestEncodeL2Frame(t *testing.T) {
	m := engine.ServerMessage{Type: engine.MsgL2Update, L2: engine.L2Update{
		Side: engine.SideSell, Price: 101.0, Quantity: 0,
	}}
	payload := frameOf(t, EncodeServerMessage(&m))

	require.Len(t, payload, 1+1+8+8)
	assert.Equal(t, byte(engine.SideSell), payload[1])
	assert.Equal(t, 101.0, math.Float64frombits(binary.BigEndian.Uint64(payload[2:10])))
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(payload[10:18]))
}

func TestEncodePnLFrame(t *testing.T) {
	m := engine.ServerMessage{Type: engine.MsgPnLUpdate, PnL: pnl.Update{
		UserID: 1, Realized: 50, Unrealized: -2, Position: 10, AvgPrice: 100, Equity: 48,
	}}
	payload := frameOf(t, EncodeServerMessage(&m))

	require.Len(t, payload, 1+4+5*8)
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(payload[1:5]))
	assert.Equal(t, 50.0, math.Float64frombits(binary.BigEndian.Uint64(payload[5:13])))
	assert.Equal(t, 48.0, math.Float64frombits(binary.BigEndian.Uint64(payload[37:45])))
}

func TestDecodeNewOrderPayload(t *testing.T) {
	payload := []byte{byte(engine.MsgNewOrder)}
	payload = binary.BigEndian.AppendUint64(payload, 42) // user id
	payload = append(payload, engine.SideSell)
	payload = binary.BigEndian.AppendUint64(payload, math.Float64bits(101.5))
	payload = binary.BigEndian.AppendUint64(payload, 17)

	cm, err := DecodeClientPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, engine.MsgNewOrder, cm.Type)
	assert.Equal(t, uint64(42), cm.NewOrder.UserID)
	assert.Equal(t, engine.SideSell, cm.NewOrder.Side)
	assert.Equal(t, 101.5, cm.NewOrder.Price)
	assert.Equal(t, uint64(17), cm.NewOrder.Quantity)
}

func TestDecodeCancelPayload(t *testing.T) {
	payload := []byte{byte(engine.MsgCancel)}
	payload = binary.BigEndian.AppendUint64(payload, 31337)

	cm, err := DecodeClientPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, engine.MsgCancel, cm.Type)
	assert.Equal(t, uint64(31337), cm.Cancel.OrderID)
}

func TestDecodeMalformedPayloads(t *testing.T) {
	_, err := DecodeClientPayload(nil)
	assert.ErrorIs(t, err, ErrShortPayload)

	_, err = DecodeClientPayload([]byte{byte(engine.MsgNewOrder), 1, 2, 3})
	assert.ErrorIs(t, err, ErrShortPayload)

	_, err = DecodeClientPayload([]byte{byte(engine.MsgCancel), 1})
	assert.ErrorIs(t, err, ErrShortPayload)

	_, err = DecodeClientPayload([]byte{0x7f, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownType)
}
