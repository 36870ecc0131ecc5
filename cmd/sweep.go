package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/epon-sim/epon-sim/sim"
	"github.com/epon-sim/epon-sim/sim/dba"
	"github.com/epon-sim/epon-sim/sim/trace"
)

// sweepCmd runs the same network under several policies and seeds concurrently
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one simulation per DBA policy and seed, in parallel, and compare them",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd.Flags(), configFile)
		if err != nil {
			return err
		}
		base, err := loadConfig(v)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		policies := v.GetStringSlice("policies")
		if len(policies) == 0 {
			policies = dba.Names()
		}
		configs, err := sweepConfigs(base, policies, v.GetInt("seeds"))
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		shutdown, err := initTracing(ctx, v.GetString("otel-trace"))
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer shutdownWithTimeout(shutdown)

		logConfig(base)
		results, err := runSweep(ctx, configs, v.GetInt("parallel"))
		if err != nil {
			logrus.Fatalf("Sweep failed: %v", err)
		}
		if err := printSweep(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		if err := publish(ctx, v, results); err != nil {
			logrus.Fatalf("%v", err)
		}
		return nil
	},
}

// sweepConfigs expands base into one validated configuration per policy and
// seed, ordered by policy then seed.
func sweepConfigs(base sim.Config, policies []string, seeds int) ([]sim.Config, error) {
	if seeds <= 0 {
		return nil, fmt.Errorf("%w: number of seeds must be positive, got %d", sim.ErrInvalidConfig, seeds)
	}
	configs := make([]sim.Config, 0, len(policies)*seeds)
	for _, policy := range policies {
		for i := 0; i < seeds; i++ {
			cfg := base
			cfg.Network.Policy = policy
			cfg.Seed = base.Seed + int64(i)
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// runSweep runs every configuration with at most parallel runs in flight
// (parallel <= 0 means one per CPU). Results keep the order of configs; the
// first failure cancels the runs still pending.
func runSweep(ctx context.Context, configs []sim.Config, parallel int) ([]*sim.Metrics, error) {
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	results := make([]*sim.Metrics, len(configs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, cfg := range configs {
		g.Go(func() error {
			m, _, err := simulate(ctx, cfg, nil, trace.TraceLevelNone)
			if err != nil {
				return fmt.Errorf("%s seed %d: %w", cfg.Network.Policy, cfg.Seed, err)
			}
			logrus.Infof("Finished %s seed %d: %d events", cfg.Network.Policy, cfg.Seed, m.EventsDispatched)
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// printSweep writes one row per run.
func printSweep(w io.Writer, results []*sim.Metrics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY\tSEED\tCYCLES\tSENT\tDROPPED\tMEAN DELAY (s)\tMEAN ENERGY")
	for _, m := range results {
		_, sent, dropped := m.Totals()
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.9f\t%.6f\n",
			m.Policy, m.Seed, m.Cycles, sent, dropped, m.MeanDelay(), m.MeanEnergy())
	}
	return tw.Flush()
}
