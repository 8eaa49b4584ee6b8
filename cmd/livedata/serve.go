package main

import (
	"context"
	"net/http"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/connector"
	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/livedata/internal/feed"
	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/internal/ops"
	"github.com/yanun0323/livedata/internal/resolver"
	"github.com/yanun0323/livedata/internal/store"
	"github.com/yanun0323/livedata/pkg/record"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the feed and distribute live data",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start pyroscope")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := obs.NewMetrics(reg)
	if err != nil {
		return err
	}

	clients, closeClients, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClients()

	st := store.New(metrics)
	topics := ops.NewTopics(cfg.Distribution.TopicPrefix)
	factory, err := ops.BuildSenders(cfg, clients, topics)
	if err != nil {
		return err
	}
	srv, err := distribution.NewServer(st, factory, metrics)
	if err != nil {
		return err
	}
	defer srv.Stop()

	res, err := ops.BuildResolver(cfg, clients, metrics)
	if err != nil {
		return err
	}
	subs, err := ops.SubscribeAll(ctx, srv, res, topics, resolver.StandardNormalization.ID, cfg.Distribution.Subscribe)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		logs.Infof("subscribed %s, key: %s, topic: %s", sub.Spec, sub.Key, sub.Topic)
	}

	st.SetDataStateListener(func() {
		logs.Infof("market data complete, keys: %d", st.Len())
	})

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		server := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			logs.Infof("metrics listening on %s", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return server.Shutdown(shutdownCtx)
		})
	}
	eg.Go(func() error {
		return runFeed(ctx, cfg, st, metrics)
	})
	eg.Go(func() error {
		select {
		case <-ctx.Done():
		case <-sys.Shutdown():
			cancel()
		}
		return nil
	})

	err = eg.Wait()
	latency := metrics.DeliveryLatency()
	logs.Infof("livedata stopped, keys: %d, distributors: %d, deliveries: %d, avg latency: %s, max latency: %s",
		st.Len(), len(srv.Distributors()), latency.Count, latency.Avg, latency.Max)
	return err
}

// runFeed keeps the store fed until ctx is done.
func runFeed(ctx context.Context, cfg ops.Loaded, st *store.Store, metrics *obs.Metrics) error {
	if cfg.Feed.WebSocketURL != "" {
		return runWebSocketFeed(ctx, cfg, st)
	}

	switch cfg.Feed.Format {
	case ops.FormatFrame:
		return supervise(ctx, cfg, metrics, feed.NewTickCallback(st), record.FrameFactory(cfg.Frame))
	case ops.FormatQuote:
		return supervise(ctx, cfg, metrics, feed.NewQuoteCallback(st), record.QuoteFactory())
	default:
		return supervise(ctx, cfg, metrics, feed.NewChunkCallback("chunk feed"), record.ChunkFactory(cfg.Feed.ChunkSize))
	}
}

func supervise[T any](ctx context.Context, cfg ops.Loaded, metrics *obs.Metrics, callback connector.Callback[T], streams record.StreamFactory[T]) error {
	factory := connector.NetworkFactory[T]{
		Network:     cfg.Feed.Network,
		Host:        cfg.Feed.Host,
		Port:        cfg.Feed.Port,
		DialTimeout: cfg.Feed.DialTimeout,
		Option: connector.Option{
			HandoffSize: cfg.Feed.HandoffSize,
			Metrics:     metrics,
		},
	}
	var executor connector.Executor
	if cfg.Feed.Pipelined {
		executor = connector.GoExecutor
	}

	logs.Infof("feed connector starting, addr: %s, format: %s, pipelined: %t", factory.Address(), cfg.Feed.Format, cfg.Feed.Pipelined)
	err := connector.Supervise(ctx, func() (*connector.Job[T], error) {
		return factory.NewJob(callback, streams, executor)
	}, cfg.Backoff)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runWebSocketFeed(ctx context.Context, cfg ops.Loaded, st *store.Store) error {
	f := feed.NewWebSocketFeed(ctx, cfg.Feed.WebSocketURL, st)
	if err := f.Start(ctx); err != nil {
		return err
	}
	defer f.Close()

	unsubscribe := f.Observe(ctx)
	defer unsubscribe()

	if len(cfg.Feed.Symbols) != 0 {
		if err := f.Subscribe(ctx, cfg.Feed.Symbols); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}
