package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/logs"
)

// RedisClient is the part of *redis.Client used by Redis.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis stores JSON encoded values in redis. Capacity and eviction are
// managed by the redis server; ttl 0 keeps entries until evicted there.
type Redis[K comparable, V any] struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	keyFn  func(K) string
}

// NewRedis creates a redis backed cache. keyFn renders a key to its redis
// key suffix.
func NewRedis[K comparable, V any](client RedisClient, prefix string, ttl time.Duration, keyFn func(K) string) (*Redis[K, V], error) {
	if client == nil || keyFn == nil {
		return nil, exception.ErrNilInstance
	}
	return &Redis[K, V]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		keyFn:  keyFn,
	}, nil
}

func (r *Redis[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var v V
	data, err := r.client.Get(ctx, r.prefix+r.keyFn(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logs.Errorf("redis cache get, key: %s, err: %+v", r.keyFn(key), err)
		}
		return v, false
	}
	if err := sonic.Unmarshal(data, &v); err != nil {
		logs.Errorf("redis cache decode, key: %s, err: %+v", r.keyFn(key), err)
		return v, false
	}
	return v, true
}

func (r *Redis[K, V]) Put(ctx context.Context, key K, value V) {
	data, err := sonic.Marshal(value)
	if err != nil {
		logs.Errorf("redis cache encode, key: %s, err: %+v", r.keyFn(key), err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+r.keyFn(key), data, r.ttl).Err(); err != nil {
		logs.Errorf("redis cache set, key: %s, err: %+v", r.keyFn(key), err)
	}
}
