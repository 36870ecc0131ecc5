package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epon-sim/epon-sim/sim"
)

func TestSweepConfigs_PolicyMajorSeedMinor(t *testing.T) {
	configs, err := sweepConfigs(shortConfig("fixed"), []string{"fixed", "gated"}, 2)
	require.NoError(t, err)
	require.Len(t, configs, 4)

	got := make([]string, len(configs))
	for i, c := range configs {
		got[i] = fmt.Sprintf("%s/%d", c.Network.Policy, c.Seed)
	}
	assert.Equal(t, []string{"fixed/1", "fixed/2", "gated/1", "gated/2"}, got)
}

func TestSweepConfigs_Rejects(t *testing.T) {
	_, err := sweepConfigs(shortConfig("fixed"), []string{"fixed", "wfq"}, 1)
	assert.True(t, errors.Is(err, sim.ErrInvalidConfig))

	_, err = sweepConfigs(shortConfig("fixed"), []string{"fixed"}, 0)
	assert.True(t, errors.Is(err, sim.ErrInvalidConfig))
}

func TestRunSweep_ParallelMatchesSequential(t *testing.T) {
	// GIVEN the same sweep run with one worker and with four
	configs, err := sweepConfigs(shortConfig("fixed"), []string{"fixed", "proportional", "limitedExcess"}, 2)
	require.NoError(t, err)

	// WHEN both complete
	sequential, err := runSweep(context.Background(), configs, 1)
	require.NoError(t, err)
	parallel, err := runSweep(context.Background(), configs, 4)
	require.NoError(t, err)

	// THEN results keep configuration order and runs share no state
	require.Len(t, parallel, len(configs))
	for i, cfg := range configs {
		assert.Equal(t, cfg.Network.Policy, parallel[i].Policy)
		assert.Equal(t, cfg.Seed, parallel[i].Seed)
	}
	assert.Equal(t, sequential, parallel)
}

func TestRunSweep_CancelledContext(t *testing.T) {
	configs, err := sweepConfigs(shortConfig("fixed"), []string{"fixed"}, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runSweep(ctx, configs, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPrintSweep(t *testing.T) {
	configs, err := sweepConfigs(shortConfig("fixed"), []string{"gated"}, 1)
	require.NoError(t, err)
	results, err := runSweep(context.Background(), configs, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printSweep(&buf, results))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "POLICY"))
	assert.True(t, strings.HasPrefix(lines[1], "gated"))
}
