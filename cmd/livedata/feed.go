package main

import (
	"github.com/spf13/cobra"
	"github.com/yanun0323/livedata/internal/feed"
	"github.com/yanun0323/livedata/internal/ops"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Serve a synthetic quote feed for the connector",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := ops.Load(configPath)
		if err != nil {
			return err
		}
		g := cfg.Generator
		srv, err := feed.NewServer(feed.ServerOption{
			Network:  g.Network,
			Addr:     g.Addr,
			Format:   g.Format,
			Symbols:  g.Symbols,
			Price:    g.Price,
			Spread:   g.Spread,
			Interval: g.Interval,
			Ticks:    g.Ticks,
			Chaos:    g.Chaos,
		})
		if err != nil {
			return err
		}
		return srv.Serve(cmd.Context())
	},
}
