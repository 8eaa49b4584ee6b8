package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/ops"
	"github.com/yanun0323/livedata/internal/resolver"
)

var ruleSetID string

var resolveCmd = &cobra.Command{
	Use:   "resolve BUNDLE...",
	Short: "Resolve identifier bundles such as TICKER~AAPL,ISIN~US0378331005",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&ruleSetID, "rule-set", resolver.StandardNormalization.ID, "normalization rule set id")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Distribution.Senders = nil

	ctx := cmd.Context()
	clients, closeClients, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClients()

	res, err := ops.BuildResolver(cfg, clients, nil)
	if err != nil {
		return err
	}

	specs := make([]resolver.LiveDataSpecification, 0, len(args))
	for _, arg := range args {
		b, err := resolver.ParseBundle(arg)
		if err != nil {
			return errors.Wrapf(err, "bundle %q", arg)
		}
		specs = append(specs, resolver.LiveDataSpecification{Bundle: b, RuleSetID: ruleSetID})
	}

	resolved := res.ResolveAll(ctx, specs)
	out := cmd.OutOrStdout()
	for i, spec := range specs {
		dist := resolved[spec]
		if dist == nil {
			fmt.Fprintf(out, "%s\tunresolved\n", args[i])
			continue
		}
		data, err := sonic.MarshalString(dist)
		if err != nil {
			return errors.Wrap(err, "encode distribution specification")
		}
		fmt.Fprintf(out, "%s\t%s\n", args[i], data)
	}
	return nil
}
