package sender

import (
	"context"

	"github.com/yanun0323/livedata/internal/distribution"
)

// Channel writes payloads into a Go channel, blocking while it is full.
type Channel struct {
	d  *distribution.Distributor
	ch chan<- []byte
}

// NewChannel returns a channel sender for d.
func NewChannel(d *distribution.Distributor, ch chan<- []byte) *Channel {
	return &Channel{d: d, ch: ch}
}

func (c *Channel) Send(ctx context.Context, payload []byte) error {
	select {
	case c.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Distributor() *distribution.Distributor {
	return c.d
}

// ChannelFactory gives every distributor a sender writing into ch.
func ChannelFactory(ch chan<- []byte) distribution.SenderFactory {
	return distribution.SenderFactoryFunc(func(d *distribution.Distributor) ([]distribution.Sender, error) {
		return []distribution.Sender{NewChannel(d, ch)}, nil
	})
}
