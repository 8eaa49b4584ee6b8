package sender

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/livedata/pkg/exception"
)

// MessageWriter is the part of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka writes payloads to a kafka topic keyed by the distributor key.
type Kafka struct {
	d      *distribution.Distributor
	writer MessageWriter
	topic  string
}

func (k *Kafka) Send(ctx context.Context, payload []byte) error {
	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(k.d.Key()),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "distributor", Value: []byte(k.d.ID())},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "kafka write").With("topic", k.topic)
	}
	return nil
}

func (k *Kafka) Distributor() *distribution.Distributor {
	return k.d
}

// Topic returns the kafka topic.
func (k *Kafka) Topic() string {
	return k.topic
}

// KafkaFactory creates one kafka sender per distributor. The writer must
// not have a fixed Topic since every message carries its own.
func KafkaFactory(writer MessageWriter, topic TopicFunc) (distribution.SenderFactory, error) {
	if writer == nil {
		return nil, exception.ErrNilInstance
	}
	return distribution.SenderFactoryFunc(func(d *distribution.Distributor) ([]distribution.Sender, error) {
		return []distribution.Sender{&Kafka{d: d, writer: writer, topic: topic.topic(d.Key())}}, nil
	}), nil
}

// NewKafkaWriter returns a writer for the given brokers suited to KafkaFactory.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           5 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}
