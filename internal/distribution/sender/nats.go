package sender

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/livedata/pkg/exception"
)

var _ NATSPublisher = (*nats.Conn)(nil)

// NATSPublisher is the part of *nats.Conn used by NATS.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes payloads on a nats subject.
type NATS struct {
	d       *distribution.Distributor
	conn    NATSPublisher
	subject string
}

func (n *NATS) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return errors.Wrap(err, "nats publish").With("subject", n.subject)
	}
	return nil
}

func (n *NATS) Distributor() *distribution.Distributor {
	return n.d
}

// Subject returns the nats subject.
func (n *NATS) Subject() string {
	return n.subject
}

// NATSFactory creates one nats sender per distributor.
func NATSFactory(conn NATSPublisher, topic TopicFunc) (distribution.SenderFactory, error) {
	if conn == nil {
		return nil, exception.ErrNilInstance
	}
	return distribution.SenderFactoryFunc(func(d *distribution.Distributor) ([]distribution.Sender, error) {
		return []distribution.Sender{&NATS{d: d, conn: conn, subject: topic.topic(d.Key())}}, nil
	}), nil
}
