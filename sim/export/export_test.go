package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epon-sim/epon-sim/sim"
)

func sampleMetrics(policy string, seed int64) *sim.Metrics {
	onu := func(id int, sent, dropped int64, delay, energy float64) sim.ONUStatistics {
		return sim.ONUStatistics{
			ONU:               id,
			PacketsReceived:   sent + dropped,
			PacketsSent:       sent,
			PacketsDropped:    dropped,
			TotalDelay:        delay * float64(sent),
			AverageDelay:      delay,
			TimeInState:       map[sim.ONUState]float64{sim.StateOff: 0.25, sim.StateOffWait: 0, sim.StateTransitionToOn: 0.25, sim.StateOn: 0.5},
			EnergyConsumption: energy,
		}
	}
	return &sim.Metrics{
		Horizon:          1,
		Seed:             seed,
		Policy:           policy,
		NumONUs:          2,
		EventsDispatched: 1234,
		Cycles:           666,
		ONUs:             []sim.ONUStatistics{onu(0, 100, 2, 1e-3, 0.825), onu(1, 50, 0, 3e-3, 0.825)},
	}
}

func TestCollector_ObserveSetsGauges(t *testing.T) {
	// GIVEN a collector on a private registry
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	// WHEN a run is observed
	c.Observe(sampleMetrics("gated", 7))

	// THEN per-ONU and per-run gauges carry the run's labels
	assert.Equal(t, 100.0, testutil.ToFloat64(c.PacketsSent.WithLabelValues("gated", "7", "0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PacketsDropped.WithLabelValues("gated", "7", "0")))
	assert.Equal(t, 3e-3, testutil.ToFloat64(c.AverageDelay.WithLabelValues("gated", "7", "1")))
	assert.Equal(t, 0.5, testutil.ToFloat64(c.TimeInState.WithLabelValues("gated", "7", "1", "ON")))
	assert.Equal(t, 666.0, testutil.ToFloat64(c.Cycles.WithLabelValues("gated", "7")))
	assert.Equal(t, 2*len(sim.ONUStates), testutil.CollectAndCount(c.TimeInState))
}

func TestCollector_RegisterTwiceReusesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)
	assert.Same(t, first.Energy, second.Energy)
}

func TestCollector_WriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.Observe(sampleMetrics("fixed", 1))

	path := filepath.Join(t.TempDir(), "epon.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `epon_onu_packets_sent{onu="1",policy="fixed",seed="1"} 50`), string(data))
}

func TestResultStore_SaveAndQuery(t *testing.T) {
	// GIVEN a fresh store on disk
	ctx := context.Background()
	store, err := OpenResultStore(ctx, filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	// WHEN two runs under different policies are saved
	id1, err := store.SaveRun(ctx, sampleMetrics("fixed", 1))
	require.NoError(t, err)
	id2, err := store.SaveRun(ctx, sampleMetrics("gated", 1))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// THEN runs can be listed per policy with their aggregates
	all, err := store.Runs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	gated, err := store.Runs(ctx, "gated")
	require.NoError(t, err)
	require.Len(t, gated, 1)
	assert.Equal(t, id2, gated[0].ID)
	assert.Equal(t, 666, gated[0].Cycles)
	assert.Equal(t, int64(2), gated[0].Dropped)
	assert.InDelta(t, 250e-3/150, gated[0].MeanDelay, 1e-12)

	// AND the per-ONU rows come back in ONU order
	stats, err := store.ONUStats(ctx, id1)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(100), stats[0].PacketsSent)
	assert.Equal(t, 0.25, stats[1].TimeInState[sim.StateTransitionToOn])
}

func TestResultStore_Closed(t *testing.T) {
	store, err := OpenResultStore(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	_, err = store.SaveRun(context.Background(), sampleMetrics("fixed", 1))
	assert.ErrorIs(t, err, ErrStoreClosed)
}
