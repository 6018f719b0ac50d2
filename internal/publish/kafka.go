package publish

import (
	"context"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/segmentio/kafka-go"
)

const kafkaPublishTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		timeout: kafkaPublishTimeout,
	}
}

// Publish keys messages by run id so one run's reports stay ordered.
func (k *Kafka) Publish(ctx context.Context, r Report) error {
	payload, err := encode(r)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(r.RunID),
		Value: payload,
		Time:  r.Timestamp,
	}

	timeout := k.timeout
	if timeout <= 0 {
		timeout = kafkaPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.New().Wrap(errors.ErrPublish, err)
	}

	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
