package main

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/distribution/sender"
	"github.com/yanun0323/livedata/internal/ops"
	"github.com/yanun0323/livedata/internal/resolver/gormstore"
	"github.com/yanun0323/livedata/pkg/conn"
	"github.com/yanun0323/logs"
)

// dial opens the broker and database connections cfg asks for. The
// returned close func releases whatever was opened, also on error.
func dial(ctx context.Context, cfg ops.Loaded) (ops.Clients, func(), error) {
	var (
		clients ops.Clients
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.HasSender(ops.SenderRedis) || cfg.Resolver.Cache == ops.CacheRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return ops.Clients{}, func() {}, errors.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
		}
		clients.Redis = rdb
		logs.Infof("redis connected, addr: %s", cfg.Redis.Addr)
	}

	if cfg.HasSender(ops.SenderKafka) {
		writer := sender.NewKafkaWriter(cfg.Kafka.Brokers)
		closers = append(closers, func() {
			if err := writer.Close(); err != nil {
				logs.Errorf("close kafka writer, err: %+v", err)
			}
		})
		clients.Kafka = writer
		logs.Infof("kafka writer ready, brokers: %v", cfg.Kafka.Brokers)
	}

	if cfg.HasSender(ops.SenderNATS) {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("livedata"))
		if err != nil {
			closeAll()
			return ops.Clients{}, func() {}, errors.Wrapf(err, "connect nats %s", cfg.NATS.URL)
		}
		closers = append(closers, func() { _ = nc.Drain() })
		clients.NATS = nc
		logs.Infof("nats connected, url: %s", cfg.NATS.URL)
	}

	if cfg.Resolver.IDSource == ops.IDSourcePostgres {
		pg, err := conn.New(cfg.Postgres)
		if err != nil {
			closeAll()
			return ops.Clients{}, func() {}, err
		}
		closers = append(closers, func() { _ = pg.Close() })
		if err := pg.Ping(ctx); err != nil {
			closeAll()
			return ops.Clients{}, func() {}, errors.Wrap(err, "ping postgres")
		}
		ids, err := gormstore.New(pg.DB())
		if err != nil {
			closeAll()
			return ops.Clients{}, func() {}, err
		}
		if err := ids.Migrate(ctx); err != nil {
			closeAll()
			return ops.Clients{}, func() {}, err
		}
		clients.IDs = ids
		logs.Info("postgres identifier store ready")
	}

	return clients, closeAll, nil
}
