package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epon-sim/epon-sim/sim/internal/testutil"
	"github.com/epon-sim/epon-sim/sim/trace"
	"github.com/epon-sim/epon-sim/sim/traffic"
)

func runSimulation(t *testing.T, cfg Config, opts ...Option) (*Simulator, *Metrics) {
	t.Helper()
	s, err := NewSimulator(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Run())
	return s, s.Metrics()
}

func TestSimulator_SameSeedSameResults(t *testing.T) {
	// GIVEN a 4-ONU stochastic configuration
	cfg := testConfig(func(c *Config) {
		c.Horizon = 0.05
		c.Network.NumONUs = 4
		c.Traffic = []traffic.Profile{{Distribution: "pareto", BitRate: 200_000_000, PacketBytes: 1500}}
	})

	// WHEN it is run twice with verbose tracing
	var out1, out2 bytes.Buffer
	_, m1 := runSimulation(t, cfg, WithTraceWriter(&out1))
	_, m2 := runSimulation(t, cfg, WithTraceWriter(&out2))

	// THEN statistics and the event trace are identical
	assert.Equal(t, m1, m2)
	assert.Equal(t, out1.String(), out2.String())
	assert.NotZero(t, m1.EventsDispatched)
}

func TestSimulator_DifferentSeedsDiffer(t *testing.T) {
	cfg := testConfig(func(c *Config) {
		c.Horizon = 0.05
		c.Traffic = []traffic.Profile{{Distribution: "poisson", BitRate: 100_000_000, PacketBytes: 1500}}
	})
	_, m1 := runSimulation(t, cfg)
	cfg.Seed = 2
	_, m2 := runSimulation(t, cfg)
	assert.NotEqual(t, m1.ONUs[0].TotalDelay, m2.ONUs[0].TotalDelay)
}

func TestSimulator_PowerCycleSequence(t *testing.T) {
	// GIVEN one energy-aware ONU with a 2-packet threshold, 1 packet per ms,
	// 1 ms cycles and a 0.2 ms wake-up
	cfg := testConfig(func(c *Config) {
		c.Horizon = 0.02
		c.Network.CycleLength = 1e-3
		c.ONU.QueueThreshold = 2
		c.ONU.WakeupTime = 2e-4
	})
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelTransitions})

	// WHEN it runs
	runSimulation(t, cfg, WithDecisionTrace(st))

	// THEN it starts OFF and walks OFF -> OFF_WAIT -> TRANSITION_TO_ON -> ON
	require.GreaterOrEqual(t, len(st.Transitions), 4)
	got := st.Transitions[:4]
	assert.Equal(t, trace.TransitionRecord{ONU: 0, Clock: 0, From: "OFF", To: "OFF"}, got[0])
	assert.Equal(t, "OFF_WAIT", got[1].To)
	assert.Equal(t, "TRANSITION_TO_ON", got[2].To)
	assert.Equal(t, "ON", got[3].To)

	// the second packet (t=2ms) crosses the threshold
	testutil.AssertTimeEqual(t, "OFF_WAIT", 2e-3, got[1].Clock)
	// ceil((2ms + 0.2ms) / 1ms) * 1ms - 0.2ms
	testutil.AssertTimeEqual(t, "TRANSITION_TO_ON", 2.8e-3, got[2].Clock)
	// TRANSITION_TO_ON lasts exactly the wake-up time
	testutil.AssertTimeEqual(t, "wake-up duration", 2e-4, got[3].Clock-got[2].Clock)

	// AND every later transition follows a legal edge
	for _, tr := range st.Transitions[1:] {
		assert.True(t, canTransition(ONUState(tr.From), ONUState(tr.To)), "%s -> %s", tr.From, tr.To)
	}
}

func TestSimulator_AlwaysOnONU(t *testing.T) {
	// GIVEN energy saving disabled
	cfg := testConfig(func(c *Config) {
		c.Network.NumONUs = 3
		c.ONU.EnergyAware = false
	})

	// WHEN it runs
	_, m := runSimulation(t, cfg)

	// THEN every ONU spends the whole run ON, reports from the first cycle and sends traffic
	for _, o := range m.ONUs {
		testutil.AssertFloat64Equal(t, "time ON", cfg.Horizon, o.TimeInState[StateOn], 1e-12)
		testutil.AssertFloat64Equal(t, "energy", 1, o.EnergyConsumption, 1e-12)
		assert.Greater(t, o.PacketsSent, int64(0))
	}
}

func TestSimulator_ConservesPacketsUnderOverload(t *testing.T) {
	// GIVEN a 100 Mb/s uplink, a 5-packet queue and 200 Mb/s offered
	cfg := testConfig(func(c *Config) {
		c.Horizon = 0.05
		c.Network.UplinkCapacity = 100_000_000
		c.ONU.EnergyAware = false
		c.ONU.MaxQueue = 5
		c.Traffic = []traffic.Profile{{Distribution: "deterministic", BitRate: 200_000_000, PacketBytes: 1000}}
	})

	// WHEN it runs
	s, m := runSimulation(t, cfg)

	// THEN packets are dropped, dropped packets never entered the queue and
	// every received packet is accounted for
	o := m.ONUs[0]
	assert.Greater(t, o.PacketsDropped, int64(0))
	onu := s.ONUs[0]
	assert.LessOrEqual(t, onu.QueueBits(), onu.queue.Capacity())
	assert.Equal(t, o.PacketsReceived, o.PacketsSent+o.PacketsDropped+int64(onu.queue.Len()))
	assert.GreaterOrEqual(t, o.AverageDelay, 0.0)
}

func TestSimulator_AllPoliciesRunClean(t *testing.T) {
	for _, policy := range []string{"fixed", "fair", "proportional", "gated", "limited", "limitedExcess"} {
		t.Run(policy, func(t *testing.T) {
			cfg := testConfig(func(c *Config) {
				c.Horizon = 0.1
				c.Network.NumONUs = 4
				c.Network.Policy = policy
				c.ONU.QueueThreshold = 0
				c.Traffic = []traffic.Profile{{Distribution: "pareto", BitRate: 300_000_000, PacketBytes: 1500}}
			})
			_, m := runSimulation(t, cfg)
			for _, o := range m.ONUs {
				total := 0.0
				for _, v := range o.TimeInState {
					total += v
				}
				testutil.AssertFloat64Equal(t, "time in states", cfg.Horizon, total, 1e-9)
				assert.GreaterOrEqual(t, o.AverageDelay, 0.0)
				assert.Greater(t, o.PacketsSent, int64(0))
			}
		})
	}
}

func TestSimulator_VerboseTraceFormat(t *testing.T) {
	cfg := testConfig(func(c *Config) { c.Horizon = 0.003 })
	var out bytes.Buffer
	runSimulation(t, cfg, WithTraceWriter(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "0.000000000 ONU 0 StateTransitionEvent OFF", lines[0])
	assert.Contains(t, out.String(), "0.001000000 ONU 0 PacketArrivalEvent 8000 8000\n")
	want := fmt.Sprintf("0.001500000 OLT GateMessagesEvent\nREPORT ONU 0 qsize=0 tsize=%d\nOVERALL ONUs qsize=0 tsize=%d active=0\n",
		cfg.Budget(), cfg.Budget())
	assert.Contains(t, out.String(), want)
}

func TestSimulator_RunOnlyOnce(t *testing.T) {
	s, _ := runSimulation(t, testConfig(func(c *Config) { c.Horizon = 0.001 }))
	assert.Error(t, s.Run())
}

func TestSimulator_RunContextCancelled(t *testing.T) {
	s, err := NewSimulator(testConfig(nil))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(s.RunContext(ctx), context.Canceled))
}

func TestNewSimulator_InvalidConfig(t *testing.T) {
	_, err := NewSimulator(testConfig(func(c *Config) { c.Network.Policy = "round-robin" }))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
