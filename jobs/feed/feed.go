package feed

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/IBM/sarama"

	"tycho/book"
)

// Config names the Kafka destination for the trade feed. Empty Brokers
// disables the feed.
type Config struct {
	Brokers []string
	Topic   string
}

// event is the published trade record.
type event struct {
	V          int     `json:"v"`
	TradeID    uint64  `json:"trade_id"`
	BuyOrder   uint64  `json:"buy_order_id"`
	SellOrder  uint64  `json:"sell_order_id"`
	BuyUser    uint64  `json:"buy_user_id"`
	SellUser   uint64  `json:"sell_user_id"`
	Price      float64 `json:"price"`
	Quantity   uint64  `json:"quantity"`
	Instrument uint32  `json:"instrument_id"`
	TsNs       uint64  `json:"ts_ns"`
}

// Publisher ships executed trades to Kafka best-effort. Publish never
// blocks: when the producer's input queue is saturated the trade is
// dropped and counted, keeping the engine loop decoupled from broker
// health.
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	dropped  uint64
}

// New connects an async producer. Returns (nil, nil) when cfg.Brokers is
// empty so callers can wire the feed unconditionally.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		cfg.Topic = "trades"
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}

	p := &Publisher{producer: producer, topic: cfg.Topic}
	go func() {
		for err := range producer.Errors() {
			log.Printf("[feed] publish failed: %v", err.Err)
		}
	}()
	return p, nil
}

// Publish enqueues one trade without blocking.
func (p *Publisher) Publish(t book.Trade) {
	payload, err := json.Marshal(event{
		V:          1,
		TradeID:    t.TradeID,
		BuyOrder:   t.BuyOrderID,
		SellOrder:  t.SellOrderID,
		BuyUser:    t.BuyUserID,
		SellUser:   t.SellUserID,
		Price:      t.Price,
		Quantity:   t.Quantity,
		Instrument: t.InstrumentID,
		TsNs:       t.TsNs,
	})
	if err != nil {
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(t.TradeID, 10)),
		Value: sarama.ByteEncoder(payload),
	}
	select {
	case p.producer.Input() <- msg:
	default:
		p.dropped++
		if p.dropped%1000 == 1 {
			log.Printf("[feed] producer saturated, dropped %d trades", p.dropped)
		}
	}
}

// Close flushes and shuts down the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
