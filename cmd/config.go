package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/epon-sim/epon-sim/sim"
	"github.com/epon-sim/epon-sim/sim/dba"
	"github.com/epon-sim/epon-sim/sim/traffic"
)

// envPrefix scopes environment overrides, e.g. EPONSIM_MAX_QUEUE=64.
const envPrefix = "EPONSIM"

// registerSimFlags adds the simulation parameters. Defaults come from sim.DefaultConfig.
func registerSimFlags(fs *pflag.FlagSet) {
	d := sim.DefaultConfig()
	p := d.Traffic[0]

	fs.IntP("onus", "n", d.Network.NumONUs, "Number of ONUs")
	fs.Float64P("length", "l", d.Horizon, "Simulation length (s)")
	fs.Int64P("seed", "s", d.Seed, "Simulation seed")
	fs.Int64P("rate", "t", p.BitRate, "Traffic rate per ONU (b/s)")
	fs.IntP("packet-size", "p", p.PacketBytes, "Packet size (bytes)")
	fs.StringP("distribution", "g", p.Distribution, "Traffic distribution: deterministic, poisson, pareto")
	fs.StringP("profiles", "f", "", "Per-ONU traffic profile file (text or YAML)")

	fs.Int64P("capacity", "c", d.Network.UplinkCapacity, "Uplink capacity (b/s)")
	fs.Float64P("cycle", "d", d.Network.CycleLength, "DBA cycle (s)")
	fs.Float64("guard", d.Network.GuardTime, "Guard time between slots (s)")
	fs.StringP("policy", "a", d.Network.Policy, "DBA algorithm: "+strings.Join(dba.Names(), ", "))

	fs.BoolP("unaware", "u", !d.ONU.EnergyAware, "Disable ONU energy saving (always ON)")
	fs.IntP("max-queue", "m", d.ONU.MaxQueue, "Maximum ONU queue size (packets, 0 = unbounded)")
	fs.IntP("threshold", "q", d.ONU.QueueThreshold, "Wake-up queue threshold (packets, 0 = dynamic)")
	fs.Float64("target-delay", d.ONU.TargetDelay, "Dynamic threshold: target average delay (s)")
	fs.Int("threshold-step", d.ONU.ThresholdStep, "Dynamic threshold: adjustment step (packets)")
	fs.Float64P("wakeup", "w", d.ONU.WakeupTime, "ONU wake-up time (s)")
	fs.Float64P("refresh", "r", d.ONU.RefreshTimeout, "ONU refresh timeout (s)")
	fs.Float64P("doze-ratio", "e", d.ONU.DozeEnergyRatio, "ONU doze mode energy ratio")
}

// registerOutputFlags adds the exporters shared by run and sweep.
func registerOutputFlags(fs *pflag.FlagSet) {
	fs.String("metrics-file", "", "Write Prometheus gauges in textfile format to this file")
	fs.String("results-db", "", "Append run statistics to this SQLite database")
	fs.String("otel-trace", "", "Write OpenTelemetry spans of each run to this file")
}

// newViper binds fs to a viper instance layered as defaults < config file < environment < flags set explicitly.
func newViper(fs *pflag.FlagSet, file string) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}
	return v, nil
}

// loadConfig builds and validates the simulation configuration from v.
func loadConfig(v *viper.Viper) (sim.Config, error) {
	cfg := sim.Config{
		Horizon: v.GetFloat64("length"),
		Seed:    v.GetInt64("seed"),
		Network: sim.NewNetworkConfig(
			v.GetInt("onus"),
			v.GetInt64("capacity"),
			v.GetFloat64("cycle"),
			v.GetFloat64("guard"),
			v.GetString("policy"),
		),
		ONU: sim.ONUConfig{
			EnergyAware:     !v.GetBool("unaware"),
			MaxQueue:        v.GetInt("max-queue"),
			QueueThreshold:  v.GetInt("threshold"),
			TargetDelay:     v.GetFloat64("target-delay"),
			ThresholdStep:   v.GetInt("threshold-step"),
			WakeupTime:      v.GetFloat64("wakeup"),
			RefreshTimeout:  v.GetFloat64("refresh"),
			DozeEnergyRatio: v.GetFloat64("doze-ratio"),
		},
	}

	if path := v.GetString("profiles"); path != "" {
		if cfg.Network.NumONUs <= 0 {
			return sim.Config{}, fmt.Errorf("%w: number of ONUs must be positive, got %d", sim.ErrInvalidConfig, cfg.Network.NumONUs)
		}
		profiles, err := traffic.LoadProfiles(path, cfg.Network.NumONUs)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.Traffic = profiles
	} else {
		cfg.Traffic = []traffic.Profile{{
			Distribution: v.GetString("distribution"),
			BitRate:      v.GetInt64("rate"),
			PacketBytes:  v.GetInt("packet-size"),
		}}
	}

	if err := cfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}

// logConfig prints the startup summary.
func logConfig(cfg sim.Config) {
	offered := int64(0)
	for id := 0; id < cfg.Network.NumONUs; id++ {
		offered += cfg.ProfileFor(id).BitRate
	}
	logrus.Infof("Starting simulation: %d ONUs, %s uplink, %s offered, policy %s, cycle %.6f s, horizon %.3f s, seed %d",
		cfg.Network.NumONUs,
		humanize.SIWithDigits(float64(cfg.Network.UplinkCapacity), 2, "b/s"),
		humanize.SIWithDigits(float64(offered), 2, "b/s"),
		cfg.Network.Policy, cfg.Network.CycleLength, cfg.Horizon, cfg.Seed)
	logrus.Infof("ONU energy-aware=%t queue=%d threshold=%d wakeup=%.6f s refresh=%.6f s budget=%s bits/cycle",
		cfg.ONU.EnergyAware, cfg.ONU.MaxQueue, cfg.ONU.QueueThreshold, cfg.ONU.WakeupTime, cfg.ONU.RefreshTimeout,
		humanize.Comma(cfg.Budget()))
}
