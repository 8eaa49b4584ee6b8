package ops

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/chaos"
	"github.com/yanun0323/livedata/internal/connector"
	"github.com/yanun0323/livedata/pkg/conn"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/livedata/pkg/record"
)

// EnvPrefix prefixes environment overrides, e.g. LIVEDATA_FEED_PORT.
const EnvPrefix = "LIVEDATA"

// Feed record formats.
const (
	FormatChunk = "chunk"
	FormatFrame = "frame"
	FormatQuote = "quote"
)

// Resolver cache kinds.
const (
	CacheNone      = "none"
	CacheLRU       = "lru"
	CacheUnbounded = "unbounded"
	CacheRedis     = "redis"
)

// Resolver identifier sources.
const (
	IDSourceScheme   = "scheme"
	IDSourcePostgres = "postgres"
)

// Sender kinds.
const (
	SenderRedis = "redis"
	SenderKafka = "kafka"
	SenderNATS  = "nats"
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Feed         FeedConfig         `mapstructure:"feed"`
	Generator    GeneratorConfig    `mapstructure:"generator"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Resolver     ResolverConfig     `mapstructure:"resolver"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Profiling    ProfilingConfig    `mapstructure:"profiling"`
}

// FeedConfig describes the firehose connection.
type FeedConfig struct {
	Network        string        `mapstructure:"network"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Format         string        `mapstructure:"format"`
	ChunkSize      int           `mapstructure:"chunkSize"`
	MaxPayloadSize int           `mapstructure:"maxPayloadSize"`
	Pipelined      bool          `mapstructure:"pipelined"`
	HandoffSize    int           `mapstructure:"handoffSize"`
	DialTimeout    time.Duration `mapstructure:"dialTimeout"`
	ReconnectMin   time.Duration `mapstructure:"reconnectMin"`
	ReconnectMax   time.Duration `mapstructure:"reconnectMax"`
	WebSocketURL   string        `mapstructure:"websocketUrl"`
	Symbols        []string      `mapstructure:"symbols"`
}

// GeneratorConfig describes the synthetic feed server.
type GeneratorConfig struct {
	Network  string        `mapstructure:"network"`
	Addr     string        `mapstructure:"addr"`
	Format   string        `mapstructure:"format"`
	Symbols  []string      `mapstructure:"symbols"`
	Price    int64         `mapstructure:"price"`
	Spread   int64         `mapstructure:"spread"`
	Interval time.Duration `mapstructure:"interval"`
	Ticks    int           `mapstructure:"ticks"`
	Chaos    chaos.Config  `mapstructure:"chaos"`
}

// SnapshotConfig controls blocking snapshots.
type SnapshotConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DistributionConfig selects the senders of every subscription.
type DistributionConfig struct {
	Senders     []string `mapstructure:"senders"`
	TopicPrefix string   `mapstructure:"topicPrefix"`
	Subscribe   []string `mapstructure:"subscribe"`
}

// ResolverConfig controls the resolver pipeline.
type ResolverConfig struct {
	Cache       string        `mapstructure:"cache"`
	Capacity    int           `mapstructure:"capacity"`
	CacheTTL    time.Duration `mapstructure:"cacheTtl"`
	IDSource    string        `mapstructure:"idSource"`
	Schemes     []string      `mapstructure:"schemes"`
	TopicPrefix string        `mapstructure:"topicPrefix"`
}

// RedisConfig describes the redis endpoint.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig describes the kafka brokers.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// NATSConfig describes the nats server.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// PostgresConfig describes the identifier database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslMode"`
	DSN      string `mapstructure:"dsn"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProfilingConfig controls continuous profiling.
type ProfilingConfig struct {
	ServerAddress string `mapstructure:"serverAddress"`
	AppName       string `mapstructure:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	FileConfig

	Backoff  connector.Backoff
	Frame    record.FrameOptions
	Postgres conn.Option
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.network", "tcp")
	v.SetDefault("feed.host", "127.0.0.1")
	v.SetDefault("feed.port", 7070)
	v.SetDefault("feed.format", FormatFrame)
	v.SetDefault("feed.chunkSize", 4096)
	v.SetDefault("feed.maxPayloadSize", record.DefaultMaxPayloadSize)
	v.SetDefault("feed.pipelined", true)
	v.SetDefault("feed.handoffSize", 1024)
	v.SetDefault("feed.dialTimeout", connector.DefaultDialTimeout)
	v.SetDefault("feed.reconnectMin", 250*time.Millisecond)
	v.SetDefault("feed.reconnectMax", 5*time.Second)
	v.SetDefault("feed.websocketUrl", "")
	v.SetDefault("feed.symbols", []string{})

	v.SetDefault("generator.network", "tcp")
	v.SetDefault("generator.addr", "127.0.0.1:7070")
	v.SetDefault("generator.format", FormatFrame)
	v.SetDefault("generator.symbols", []string{"TEST-USD"})
	v.SetDefault("generator.price", 100)
	v.SetDefault("generator.spread", 1)
	v.SetDefault("generator.interval", 100*time.Millisecond)
	v.SetDefault("generator.ticks", 0)
	v.SetDefault("generator.chaos.seed", 0)
	v.SetDefault("generator.chaos.dropRate", 0.0)
	v.SetDefault("generator.chaos.duplicateRate", 0.0)
	v.SetDefault("generator.chaos.reorderWindow", 0)
	v.SetDefault("generator.chaos.maxDelay", time.Duration(0))

	v.SetDefault("snapshot.timeout", 5*time.Second)

	v.SetDefault("distribution.senders", []string{})
	v.SetDefault("distribution.topicPrefix", "LiveData.")
	v.SetDefault("distribution.subscribe", []string{})

	v.SetDefault("resolver.cache", CacheLRU)
	v.SetDefault("resolver.capacity", 10000)
	v.SetDefault("resolver.cacheTtl", time.Duration(0))
	v.SetDefault("resolver.idSource", IDSourceScheme)
	v.SetDefault("resolver.schemes", []string{})
	v.SetDefault("resolver.topicPrefix", "LiveData")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("nats.url", "")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "livedata")
	v.SetDefault("postgres.sslMode", "disable")
	v.SetDefault("postgres.dsn", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("profiling.serverAddress", "")
	v.SetDefault("profiling.appName", "livedata")
}

// Load reads the config file at path, YAML or JSON by extension, applies
// LIVEDATA_ environment overrides and validates the result. An empty path
// uses defaults and environment only.
func Load(path string) (Loaded, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return Resolve(cfg)
}

// Resolve validates cfg and derives the runtime settings.
func Resolve(cfg FileConfig) (Loaded, error) {
	switch cfg.Feed.Format {
	case FormatChunk, FormatFrame, FormatQuote:
	default:
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "feed.format: %q", cfg.Feed.Format)
	}
	switch cfg.Generator.Format {
	case FormatFrame, FormatQuote:
	default:
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "generator.format: %q", cfg.Generator.Format)
	}
	if err := cfg.Generator.Chaos.Validate(); err != nil {
		return Loaded{}, errors.Wrap(err, "generator.chaos")
	}
	switch cfg.Resolver.Cache {
	case CacheLRU:
		if cfg.Resolver.Capacity <= 0 {
			return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "resolver.capacity: %d", cfg.Resolver.Capacity)
		}
	case CacheNone, CacheUnbounded, CacheRedis:
	default:
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "resolver.cache: %q", cfg.Resolver.Cache)
	}
	switch cfg.Resolver.IDSource {
	case IDSourceScheme, IDSourcePostgres:
	default:
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "resolver.idSource: %q", cfg.Resolver.IDSource)
	}
	for _, s := range cfg.Distribution.Senders {
		switch s {
		case SenderRedis, SenderKafka:
		case SenderNATS:
			if cfg.NATS.URL == "" {
				return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "nats sender without nats.url")
			}
		default:
			return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "distribution.senders: %q", s)
		}
		if s == SenderKafka && len(cfg.Kafka.Brokers) == 0 {
			return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "kafka sender without kafka.brokers")
		}
	}
	if cfg.Feed.MaxPayloadSize <= 0 {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "feed.maxPayloadSize: %d", cfg.Feed.MaxPayloadSize)
	}
	if cfg.Snapshot.Timeout < 0 {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "snapshot.timeout: %s", cfg.Snapshot.Timeout)
	}
	if cfg.Feed.ReconnectMax < cfg.Feed.ReconnectMin {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "feed.reconnectMax %s below reconnectMin %s", cfg.Feed.ReconnectMax, cfg.Feed.ReconnectMin)
	}

	return Loaded{
		FileConfig: cfg,
		Backoff: connector.Backoff{
			Min:    cfg.Feed.ReconnectMin,
			Max:    cfg.Feed.ReconnectMax,
			Factor: 2.0,
			Jitter: 0.2,
		},
		Frame: record.FrameOptions{MaxPayloadSize: cfg.Feed.MaxPayloadSize},
		Postgres: conn.Option{
			Host:       cfg.Postgres.Host,
			Port:       cfg.Postgres.Port,
			User:       cfg.Postgres.User,
			Password:   cfg.Postgres.Password,
			Database:   cfg.Postgres.Database,
			SSLMode:    cfg.Postgres.SSLMode,
			ConnString: cfg.Postgres.DSN,
		},
	}, nil
}

// HasSender reports whether kind is configured.
func (l Loaded) HasSender(kind string) bool {
	for _, s := range l.Distribution.Senders {
		if s == kind {
			return true
		}
	}
	return false
}
