// Package broadcaster drains the event outbox into Kafka.
// Publishing is at-least-once: an event is marked SENT before the
// attempt and ACKED after, so a crash in between replays it.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"freyr/infra/outbox"
)

const maxRetries = 5

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      zerolog.Logger
}

func New(
	ob *outbox.Outbox,
	brokers []string,
	topic string,
	interval time.Duration,
	log zerolog.Logger,
) (*Broadcaster, error) {

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

// Run drains the outbox on a fixed cadence until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info().Dur("interval", b.interval).Msg("broadcaster started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

func (b *Broadcaster) drainOnce() {
	err := b.outbox.ScanPending(func(rec outbox.Record) error {
		if rec.Retries >= maxRetries {
			if rec.State != outbox.StateFailed {
				_ = b.outbox.MarkFailed(rec.Seq)
				b.log.Error().Uint64("seq", rec.Seq).Msg("event gave up after retries")
			}
			return nil
		}

		if err := b.outbox.MarkSent(rec.Seq); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn().Err(err).Uint64("seq", rec.Seq).Msg("publish failed, will retry")
			return nil
		}

		return b.outbox.MarkAcked(rec.Seq)
	})
	if err != nil {
		b.log.Error().Err(err).Msg("outbox drain aborted")
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
