package sender

import (
	"context"

	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/logs"
)

// Log writes every delivery to the debug log.
type Log struct {
	d     *distribution.Distributor
	topic string
}

func (l *Log) Send(_ context.Context, payload []byte) error {
	logs.Debugf("deliver %s, bytes: %d", l.topic, len(payload))
	return nil
}

func (l *Log) Distributor() *distribution.Distributor {
	return l.d
}

// LogFactory creates a Log sender per distributor.
func LogFactory(topic TopicFunc) distribution.SenderFactory {
	return distribution.SenderFactoryFunc(func(d *distribution.Distributor) ([]distribution.Sender, error) {
		return []distribution.Sender{&Log{d: d, topic: topic.topic(d.Key())}}, nil
	})
}
