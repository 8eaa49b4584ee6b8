package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "livedata",
	Short: "Live market data connector, cache and distribution server",
	Long: `livedata keeps a connection to a market data feed, stores the latest value
per key, serves snapshots and distributes updates to subscribers over redis,
kafka or nats. It also resolves identifier bundles to distribution topics.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json), LIVEDATA_* env overrides")
	rootCmd.AddCommand(serveCmd, feedCmd, resolveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logs.Errorf("livedata: %+v", err)
		stop()
		os.Exit(1)
	}
}
