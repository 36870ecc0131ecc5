// Package traffic generates the packet arrival streams offered to each ONU.
package traffic

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ParetoShape is the shape parameter of the Pareto inter-arrival process.
const ParetoShape = 2.5

// ErrUnknownDistribution is returned for distribution names not in the registry.
var ErrUnknownDistribution = errors.New("unknown traffic distribution")

// Generator produces the arrival timestamps of one ONU's packet stream.
type Generator interface {
	// NextArrival returns the absolute time in seconds of the next packet.
	// Successive calls return strictly increasing values.
	NextArrival() float64
	// PacketSize returns the size of every packet of the stream in bits.
	PacketSize() int64
}

// Valid value registry.
var validDistributions = map[string]bool{
	"deterministic": true, "poisson": true, "pareto": true,
}

// IsValidDistribution returns true if name is a known distribution.
func IsValidDistribution(name string) bool {
	return validDistributions[name]
}

// arrivalClock accumulates inter-arrival times into absolute timestamps.
type arrivalClock struct {
	last float64
}

// advance moves the clock by dt and returns the new timestamp. A step too small
// to change the float64 value still advances to the next representable time.
func (c *arrivalClock) advance(dt float64) float64 {
	next := c.last + dt
	if next <= c.last {
		next = math.Nextafter(c.last, math.Inf(1))
	}
	c.last = next
	return next
}

// DeterministicGenerator emits one packet every size/rate seconds.
type DeterministicGenerator struct {
	clock  arrivalClock
	period float64
	size   int64
}

func (g *DeterministicGenerator) NextArrival() float64 { return g.clock.advance(g.period) }
func (g *DeterministicGenerator) PacketSize() int64    { return g.size }

// PoissonGenerator emits packets with exponentially distributed inter-arrival times.
type PoissonGenerator struct {
	clock arrivalClock
	iat   distuv.Exponential
	size  int64
}

func (g *PoissonGenerator) NextArrival() float64 { return g.clock.advance(g.iat.Rand()) }
func (g *PoissonGenerator) PacketSize() int64    { return g.size }

// ParetoGenerator emits packets with Pareto distributed inter-arrival times
// (shape ParetoShape) whose mean matches the configured packet rate.
type ParetoGenerator struct {
	clock arrivalClock
	iat   distuv.Pareto
	size  int64
}

func (g *ParetoGenerator) NextArrival() float64 { return g.clock.advance(g.iat.Rand()) }
func (g *ParetoGenerator) PacketSize() int64    { return g.size }

// NewGenerator creates the generator described by p. src seeds the stochastic
// distributions and is ignored by the deterministic one.
func NewGenerator(p Profile, src rand.Source) (Generator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	size := p.PacketBits()
	packetRate := float64(p.BitRate) / float64(size)
	switch p.Distribution {
	case "deterministic":
		return &DeterministicGenerator{period: 1 / packetRate, size: size}, nil
	case "poisson":
		return &PoissonGenerator{
			iat:  distuv.Exponential{Rate: packetRate, Src: src},
			size: size,
		}, nil
	case "pareto":
		return &ParetoGenerator{
			iat: distuv.Pareto{
				Xm:    (ParetoShape - 1) / ParetoShape / packetRate,
				Alpha: ParetoShape,
				Src:   src,
			},
			size: size,
		}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDistribution, p.Distribution)
	}
}
