package ops

import (
	"context"
	"sort"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/livedata/internal/distribution/sender"
	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/internal/resolver"
	"github.com/yanun0323/livedata/pkg/cache"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/logs"
)

// Clients carries the broker connections the senders and caches need.
// A nil client is only an error when the config asks for it.
type Clients struct {
	Redis interface {
		sender.RedisPublisher
		cache.RedisClient
	}
	Kafka sender.MessageWriter
	NATS  sender.NATSPublisher
	IDs   resolver.IDStore
}

// BuildResolver assembles id, rule set and topic resolution behind the
// configured cache.
func BuildResolver(cfg Loaded, clients Clients, metrics *obs.Metrics) (resolver.DistributionSpecificationResolver, error) {
	var ids resolver.IDResolver
	switch cfg.Resolver.IDSource {
	case IDSourcePostgres:
		if clients.IDs == nil {
			return nil, errors.Wrap(exception.ErrNilInstance, "postgres id source without id store")
		}
		r, err := resolver.NewStoreIDResolver(clients.IDs)
		if err != nil {
			return nil, err
		}
		ids = r
	default:
		schemes := cfg.Resolver.Schemes
		if len(schemes) == 0 {
			schemes = resolver.DefaultSchemePreference
		}
		ids = resolver.SchemePreferenceIDResolver{Schemes: schemes}
	}

	def, err := resolver.NewDefault(ids, resolver.NewRegistryRuleSetResolver(), resolver.SchemeTopicNameResolver{Prefix: cfg.Resolver.TopicPrefix})
	if err != nil {
		return nil, err
	}

	var c cache.Cache[resolver.LiveDataSpecification, *resolver.DistributionSpecification]
	switch cfg.Resolver.Cache {
	case CacheNone:
		return def, nil
	case CacheLRU:
		lru, err := cache.NewLRU[resolver.LiveDataSpecification, *resolver.DistributionSpecification](cfg.Resolver.Capacity)
		if err != nil {
			return nil, err
		}
		c = lru
	case CacheUnbounded:
		c = cache.NewUnbounded[resolver.LiveDataSpecification, *resolver.DistributionSpecification]()
	case CacheRedis:
		if clients.Redis == nil {
			return nil, errors.Wrap(exception.ErrNilInstance, "redis cache without redis client")
		}
		rc, err := cache.NewRedis[resolver.LiveDataSpecification, *resolver.DistributionSpecification](
			clients.Redis, "livedata:spec:", cfg.Resolver.CacheTTL, resolver.LiveDataSpecification.Key)
		if err != nil {
			return nil, err
		}
		c = rc
	default:
		return nil, errors.Wrapf(exception.ErrInvalidConfig, "resolver.cache: %q", cfg.Resolver.Cache)
	}

	cached, err := resolver.NewCaching[resolver.LiveDataSpecification, resolver.DistributionSpecification](def, c,
		resolver.CachingOption[resolver.LiveDataSpecification]{
			Name:    "distribution_spec",
			KeyFn:   resolver.LiveDataSpecification.Key,
			Metrics: metrics,
		})
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// Topics maps distributor keys to resolved topic names and falls back to
// a prefix for keys never resolved.
type Topics struct {
	mu       sync.RWMutex
	fallback sender.TopicFunc
	names    map[string]string
}

// NewTopics returns a table falling back to prefix+key.
func NewTopics(prefix string) *Topics {
	return &Topics{fallback: sender.PrefixTopic(prefix), names: map[string]string{}}
}

// Set binds key to topic.
func (t *Topics) Set(key, topic string) {
	t.mu.Lock()
	t.names[key] = topic
	t.mu.Unlock()
}

// Topic returns the topic of key.
func (t *Topics) Topic(key string) string {
	t.mu.RLock()
	name, ok := t.names[key]
	t.mu.RUnlock()
	if ok {
		return name
	}
	return t.fallback(key)
}

// BuildSenders returns the fanout of the configured senders. With none
// configured deliveries are only logged.
func BuildSenders(cfg Loaded, clients Clients, topics *Topics) (distribution.SenderFactory, error) {
	topic := sender.TopicFunc(topics.Topic)
	if len(cfg.Distribution.Senders) == 0 {
		return sender.LogFactory(topic), nil
	}

	factories := make([]distribution.SenderFactory, 0, len(cfg.Distribution.Senders))
	for _, kind := range cfg.Distribution.Senders {
		var (
			f   distribution.SenderFactory
			err error
		)
		switch kind {
		case SenderRedis:
			if clients.Redis == nil {
				return nil, errors.Wrap(exception.ErrNilInstance, "redis sender without redis client")
			}
			f, err = sender.RedisFactory(clients.Redis, topic)
		case SenderKafka:
			f, err = sender.KafkaFactory(clients.Kafka, topic)
		case SenderNATS:
			f, err = sender.NATSFactory(clients.NATS, topic)
		default:
			err = errors.Wrapf(exception.ErrInvalidConfig, "distribution.senders: %q", kind)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "sender %s", kind)
		}
		factories = append(factories, f)
	}
	return distribution.Fanout(factories...), nil
}

// Subscription is one resolved and subscribed bundle.
type Subscription struct {
	Spec  resolver.LiveDataSpecification
	Dist  resolver.DistributionSpecification
	Key   string
	Topic string
}

// SubscribeAll resolves every bundle in one bulk call and subscribes the
// server to the resolved identifier values. Bundles that do not resolve
// are logged and skipped.
func SubscribeAll(ctx context.Context, srv *distribution.Server, res resolver.DistributionSpecificationResolver, topics *Topics, ruleSetID string, bundles []string) ([]Subscription, error) {
	specs := make([]resolver.LiveDataSpecification, 0, len(bundles))
	for _, s := range bundles {
		b, err := resolver.ParseBundle(s)
		if err != nil {
			return nil, errors.Wrapf(err, "bundle %q", s)
		}
		specs = append(specs, resolver.LiveDataSpecification{Bundle: b, RuleSetID: ruleSetID})
	}

	resolved := res.ResolveAll(ctx, specs)
	subs := make([]Subscription, 0, len(resolved))
	for spec, dist := range resolved {
		if dist == nil {
			logs.Warnf("skip unresolved subscription %s", spec)
			continue
		}
		key := dist.ID.Value
		topics.Set(key, dist.TopicName)
		if _, err := srv.Subscribe(key); err != nil {
			return subs, errors.Wrapf(err, "subscribe %s", key)
		}
		subs = append(subs, Subscription{Spec: spec, Dist: *dist, Key: key, Topic: dist.TopicName})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Key < subs[j].Key })
	return subs, nil
}
