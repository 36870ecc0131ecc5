package cmd

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/epon-sim/epon-sim/sim"
	"github.com/epon-sim/epon-sim/sim/export"
	"github.com/epon-sim/epon-sim/sim/trace"
)

// runCmd executes one simulation using parameters from flags, config file and environment
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one EPON simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd.Flags(), configFile)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(v)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		level := trace.TraceLevel(v.GetString("trace-level"))
		if !trace.IsValidTraceLevel(string(level)) {
			logrus.Fatalf("Invalid trace level %q (valid: none, cycles, transitions)", level)
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

		logConfig(cfg)
		out := bufio.NewWriter(cmd.OutOrStdout())
		var verbose io.Writer
		if v.GetBool("verbose") {
			verbose = out
		}
		start := time.Now()
		m, st, err := simulate(ctx, cfg, verbose, level)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s", time.Since(start).Round(time.Millisecond))

		if err := m.Print(out); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		if st != nil {
			logTraceSummary(trace.Summarize(st))
		}
		if path := v.GetString("results"); path != "" {
			if err := m.SaveResults(path); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		if err := publish(ctx, v, []*sim.Metrics{m}); err != nil {
			logrus.Fatalf("%v", err)
		}
		return nil
	},
}

// simulate runs one simulation under its own span. verbose may be nil; st is
// nil when level is none.
func simulate(ctx context.Context, cfg sim.Config, verbose io.Writer, level trace.TraceLevel) (m *sim.Metrics, st *trace.SimulationTrace, err error) {
	ctx, span := startRunSpan(ctx, cfg)
	defer func() { endRunSpan(span, m, err) }()

	var opts []sim.Option
	if verbose != nil {
		opts = append(opts, sim.WithTraceWriter(verbose))
	}
	if level != trace.TraceLevelNone && level != "" {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: level})
		opts = append(opts, sim.WithDecisionTrace(st))
	}
	s, err := sim.NewSimulator(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := s.RunContext(ctx); err != nil {
		return nil, nil, err
	}
	return s.Metrics(), st, nil
}

// publish hands finished runs to the exporters selected by flags.
func publish(ctx context.Context, v *viper.Viper, runs []*sim.Metrics) error {
	if path := v.GetString("metrics-file"); path != "" {
		collector, err := export.NewCollector(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		for _, m := range runs {
			collector.Observe(m)
		}
		if err := collector.WriteTextfile(path); err != nil {
			return err
		}
		logrus.Infof("Wrote metrics of %d run(s) to %s", len(runs), path)
	}
	if path := v.GetString("results-db"); path != "" {
		store, err := export.OpenResultStore(ctx, path)
		if err != nil {
			return err
		}
		defer store.Close()
		for _, m := range runs {
			id, err := store.SaveRun(ctx, m)
			if err != nil {
				return err
			}
			logrus.Infof("Stored %s seed %d as run %d in %s", m.Policy, m.Seed, id, path)
		}
	}
	return nil
}

func logTraceSummary(s *trace.TraceSummary) {
	logrus.Infof("DBA trace: %d cycles, mean length %.9f s (max %.9f s), %.2f active ONUs per cycle",
		s.TotalCycles, s.MeanCycleLength, s.MaxCycleLength, s.MeanActiveONUs)
	if s.TotalTransitions > 0 {
		logrus.Infof("DBA trace: %d power-state transitions %v", s.TotalTransitions, s.TransitionCounts)
	}
}
