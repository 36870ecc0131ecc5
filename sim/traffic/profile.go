package traffic

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrProfile is returned for malformed or incomplete traffic profile files.
var ErrProfile = errors.New("invalid traffic profile")

// Profile describes the traffic offered to one ONU.
type Profile struct {
	Distribution string `yaml:"distribution"` // deterministic, poisson or pareto
	BitRate      int64  `yaml:"bit_rate"`     // offered load in bits per second
	PacketBytes  int    `yaml:"packet_bytes"` // packet size in bytes
}

// PacketBits returns the packet size in bits.
func (p Profile) PacketBits() int64 {
	return 8 * int64(p.PacketBytes)
}

// Validate checks that the profile describes a usable stream.
func (p Profile) Validate() error {
	if !validDistributions[p.Distribution] {
		return fmt.Errorf("%w %q; valid: deterministic, poisson, pareto", ErrUnknownDistribution, p.Distribution)
	}
	if p.BitRate <= 0 {
		return fmt.Errorf("bit rate must be positive, got %d", p.BitRate)
	}
	if p.PacketBytes <= 0 {
		return fmt.Errorf("packet size must be positive, got %d bytes", p.PacketBytes)
	}
	return nil
}

// ProfileFile is the YAML form of a per-ONU profile file.
type ProfileFile struct {
	ONUs []Profile `yaml:"onus"`
}

// LoadProfiles reads one profile per ONU from path. Files ending in .yaml or
// .yml are decoded strictly as a ProfileFile; anything else is read as plain
// text with one "<distribution> <bit rate> <packet bytes>" line per ONU.
// Blank lines and lines starting with '#' are skipped. The file must cover
// numONUs ONUs; surplus entries are ignored.
func LoadProfiles(path string, numONUs int) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading traffic profile: %w", err)
	}
	var profiles []Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		profiles, err = parseYAMLProfiles(data)
	default:
		profiles, err = parseTextProfiles(data, numONUs)
	}
	if err != nil {
		return nil, err
	}
	if len(profiles) < numONUs {
		return nil, fmt.Errorf("%w: error in ONU %d: missing entry (%d of %d ONUs described)",
			ErrProfile, len(profiles), len(profiles), numONUs)
	}
	if len(profiles) > numONUs {
		logrus.Warnf("traffic profile %s describes %d ONUs, only the first %d are used", path, len(profiles), numONUs)
		profiles = profiles[:numONUs]
	}
	for id, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: error in ONU %d: %w", ErrProfile, id, err)
		}
	}
	return profiles, nil
}

func parseYAMLProfiles(data []byte) ([]Profile, error) {
	var file ProfileFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	return file.ONUs, nil
}

func parseTextProfiles(data []byte, numONUs int) ([]Profile, error) {
	profiles := make([]Profile, 0, numONUs)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id := len(profiles)
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: error in ONU %d: expected 3 fields, got %d", ErrProfile, id, len(fields))
		}
		rate, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: error in ONU %d: bit rate %q", ErrProfile, id, fields[1])
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: error in ONU %d: packet size %q", ErrProfile, id, fields[2])
		}
		profiles = append(profiles, Profile{Distribution: fields[0], BitRate: int64(rate), PacketBytes: size})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	return profiles, nil
}
