package sender

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/livedata/pkg/exception"
)

// RedisPublisher is the part of *redis.Client used by Redis.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes payloads on a redis pub/sub channel.
type Redis struct {
	d       *distribution.Distributor
	client  RedisPublisher
	channel string
}

func (r *Redis) Send(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish").With("channel", r.channel)
	}
	return nil
}

func (r *Redis) Distributor() *distribution.Distributor {
	return r.d
}

// Channel returns the pub/sub channel name.
func (r *Redis) Channel() string {
	return r.channel
}

// RedisFactory creates one redis sender per distributor.
func RedisFactory(client RedisPublisher, topic TopicFunc) (distribution.SenderFactory, error) {
	if client == nil {
		return nil, exception.ErrNilInstance
	}
	return distribution.SenderFactoryFunc(func(d *distribution.Distributor) ([]distribution.Sender, error) {
		return []distribution.Sender{&Redis{d: d, client: client, channel: topic.topic(d.Key())}}, nil
	}), nil
}
