package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/epon-sim/epon-sim/sim/dba"
	"github.com/epon-sim/epon-sim/sim/traffic"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// NetworkConfig groups the OLT and upstream channel parameters.
type NetworkConfig struct {
	NumONUs        int     // registered ONUs (must be > 0)
	UplinkCapacity int64   // upstream capacity in bits per second
	CycleLength    float64 // base DBA cycle in seconds
	GuardTime      float64 // gap between consecutive slots in seconds
	Policy         string  // DBA policy name, see dba.Names()
}

// ONUConfig groups the per-ONU queue and power-management parameters.
type ONUConfig struct {
	EnergyAware     bool    // doze when idle; false = always ON
	MaxQueue        int     // queue capacity in packets (0 = unbounded)
	QueueThreshold  int     // wake threshold in packets (0 = dynamic)
	TargetDelay     float64 // dynamic threshold: target average delay in seconds
	ThresholdStep   int     // dynamic threshold: adjustment step in packets
	WakeupTime      float64 // TRANSITION_TO_ON duration in seconds
	RefreshTimeout  float64 // maximum continuous doze in seconds
	DozeEnergyRatio float64 // power drawn in OFF/OFF_WAIT relative to ON
}

// DynamicThreshold reports whether the wake threshold is adapted at runtime.
func (c ONUConfig) DynamicThreshold() bool {
	return c.QueueThreshold == 0
}

// Config is the complete, immutable description of one simulation run.
type Config struct {
	Horizon float64 // simulation length in seconds
	Seed    int64
	Network NetworkConfig
	ONU     ONUConfig
	// Traffic holds either one profile applied to every ONU or one profile per ONU.
	Traffic []traffic.Profile
}

// NewNetworkConfig creates a NetworkConfig with all fields explicitly set.
func NewNetworkConfig(numONUs int, capacity int64, cycle, guard float64, policy string) NetworkConfig {
	return NetworkConfig{
		NumONUs:        numONUs,
		UplinkCapacity: capacity,
		CycleLength:    cycle,
		GuardTime:      guard,
		Policy:         policy,
	}
}

// DefaultConfig returns the configuration used when nothing is overridden:
// one energy-aware ONU offered 100 Mb/s of Pareto traffic on a 10 Gb/s uplink.
func DefaultConfig() Config {
	return Config{
		Horizon: 1,
		Seed:    1,
		Network: NewNetworkConfig(1, 10_000_000_000, 1.5e-3, 1e-6, "fixed"),
		ONU: ONUConfig{
			EnergyAware:     true,
			MaxQueue:        0,
			QueueThreshold:  10,
			TargetDelay:     5e-3,
			ThresholdStep:   1,
			WakeupTime:      2e-3,
			RefreshTimeout:  50e-3,
			DozeEnergyRatio: 0.3,
		},
		Traffic: []traffic.Profile{{Distribution: "pareto", BitRate: 100_000_000, PacketBytes: 1500}},
	}
}

// ProfileFor returns the traffic profile of ONU id.
func (c Config) ProfileFor(id int) traffic.Profile {
	if len(c.Traffic) == 1 {
		return c.Traffic[0]
	}
	return c.Traffic[id]
}

// Budget returns the bits the OLT can grant per base cycle once guard times are deducted.
func (c Config) Budget() int64 {
	n := float64(c.Network.NumONUs)
	return int64(math.Floor((c.Network.CycleLength - c.Network.GuardTime*n) * float64(c.Network.UplinkCapacity)))
}

// Validate checks the configuration before a run. All errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if err := validatePositive("horizon", c.Horizon); err != nil {
		return invalid("%v", err)
	}
	n := c.Network
	if n.NumONUs <= 0 {
		return invalid("number of ONUs must be positive, got %d", n.NumONUs)
	}
	if n.UplinkCapacity <= 0 {
		return invalid("uplink capacity must be positive, got %d", n.UplinkCapacity)
	}
	if err := validatePositive("cycle length", n.CycleLength); err != nil {
		return invalid("%v", err)
	}
	if n.GuardTime < 0 || math.IsNaN(n.GuardTime) {
		return invalid("guard time must be non-negative, got %g", n.GuardTime)
	}
	if _, err := dba.Lookup(n.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if budget := c.Budget(); budget < int64(n.NumONUs)*dba.ReportSize {
		return invalid("cycle budget of %d bits cannot fit one report per ONU (%d ONUs)", budget, n.NumONUs)
	}

	o := c.ONU
	if o.MaxQueue < 0 {
		return invalid("queue capacity must be non-negative, got %d", o.MaxQueue)
	}
	if o.QueueThreshold < 0 {
		return invalid("queue threshold must be non-negative, got %d", o.QueueThreshold)
	}
	if o.DynamicThreshold() {
		if err := validatePositive("target delay", o.TargetDelay); err != nil {
			return invalid("%v", err)
		}
		if o.ThresholdStep <= 0 {
			return invalid("threshold step must be positive, got %d", o.ThresholdStep)
		}
	}
	if o.WakeupTime < 0 || math.IsNaN(o.WakeupTime) {
		return invalid("wakeup time must be non-negative, got %g", o.WakeupTime)
	}
	if err := validatePositive("refresh timeout", o.RefreshTimeout); err != nil {
		return invalid("%v", err)
	}
	if o.DozeEnergyRatio < 0 || o.DozeEnergyRatio > 1 {
		return invalid("doze energy ratio must be in [0, 1], got %g", o.DozeEnergyRatio)
	}

	if len(c.Traffic) != 1 && len(c.Traffic) != n.NumONUs {
		return invalid("need 1 or %d traffic profiles, got %d", n.NumONUs, len(c.Traffic))
	}
	for id, p := range c.Traffic {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: traffic profile %d: %w", ErrInvalidConfig, id, err)
		}
	}
	return nil
}

func validatePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %g", name, val)
	}
	return nil
}
