package traffic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProfiles_Text(t *testing.T) {
	// GIVEN a text profile with a comment and a blank line
	path := writeFile(t, "profiles.txt", "# dist rate bytes\npareto 100e6 1500\n\npoisson 5000000 64\n")

	// WHEN it is loaded for 2 ONUs
	profiles, err := LoadProfiles(path, 2)

	// THEN each line maps to one ONU in order
	require.NoError(t, err)
	assert.Equal(t, []Profile{
		{Distribution: "pareto", BitRate: 100_000_000, PacketBytes: 1500},
		{Distribution: "poisson", BitRate: 5_000_000, PacketBytes: 64},
	}, profiles)
}

func TestLoadProfiles_YAML(t *testing.T) {
	path := writeFile(t, "profiles.yaml", `onus:
  - distribution: deterministic
    bit_rate: 1000000
    packet_bytes: 125
`)
	profiles, err := LoadProfiles(path, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), profiles[0].PacketBits())
}

func TestLoadProfiles_YAMLRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "profiles.yml", "onus:\n  - distribution: pareto\n    rate: 10\n")
	_, err := LoadProfiles(path, 1)
	assert.True(t, errors.Is(err, ErrProfile))
}

func TestLoadProfiles_ErrorNamesONU(t *testing.T) {
	tests := []struct {
		name    string
		content string
		onu     string
	}{
		{"bad distribution", "pareto 1e6 1500\nuniform 1e6 1500\n", "ONU 1"},
		{"bad rate", "pareto fast 1500\n", "ONU 0"},
		{"wrong field count", "pareto 1e6 1500\npareto 1e6\n", "ONU 1"},
		{"too few lines", "pareto 1e6 1500\n", "ONU 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "p.txt", tt.content)
			_, err := LoadProfiles(path, 2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProfile))
			assert.Contains(t, err.Error(), tt.onu)
		})
	}
}

func TestLoadProfiles_MissingFile(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "absent.txt"), 1)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
