package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainSub(t *testing.T, ch <-chan ServerMessage, want MsgType) ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case sm := <-ch:
			if sm.Type == want {
				return sm
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message type %d", want)
		}
	}
}

func TestDemuxFansOutToAllSubscribers(t *testing.T) {
	s := newTestServer(t)
	d := NewDemux(s)
	a := d.Subscribe(256)
	b := d.Subscribe(256)
	d.Start()
	t.Cleanup(d.Stop)

	require.True(t, s.SubmitNewOrder(NewOrder{UserID: 1, Side: SideBuy, Price: 99, Quantity: 5}))

	ackA := drainSub(t, a, MsgAck)
	ackB := drainSub(t, b, MsgAck)
	assert.Equal(t, ackA.Ack.OrderID, ackB.Ack.OrderID)
	assert.NotZero(t, ackA.Ack.OrderID)

	tobA := drainSub(t, a, MsgTOB)
	assert.Equal(t, 99.0, tobA.TOB.BidPrice)
}

func TestDemuxDropsForSlowSubscriber(t *testing.T) {
	s := newTestServer(t)
	d := NewDemux(s)
	_ = d.Subscribe(1) // never read
	d.Start()
	t.Cleanup(d.Stop)

	for i := 0; i < 10; i++ {
		require.True(t, s.SubmitNewOrder(NewOrder{UserID: 1, Side: SideBuy, Price: 90 + float64(i), Quantity: 1}))
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.NotZero(t, d.Dropped())
}
