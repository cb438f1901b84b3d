package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TradeTick is the live, best-effort fill notification. The durable
// path for the same information is the outbox; ticks are for anyone
// watching the tape.
type TradeTick struct {
	Token  string `json:"token"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
	BuyID  uint64 `json:"buy_id"`
	SellID uint64 `json:"sell_id"`
}

type TickProducer struct {
	writer *kafka.Writer
}

func NewTickProducer(brokers []string, topic string) *TickProducer {
	return &TickProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *TickProducer) Publish(ctx context.Context, t TradeTick) error {
	value, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Token),
		Value: value,
	})
}

func (p *TickProducer) Close() error {
	return p.writer.Close()
}
