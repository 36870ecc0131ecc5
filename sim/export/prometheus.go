// Package export publishes the statistics of finished runs outside the
// process: as Prometheus gauges (scraped or written to a node-exporter
// textfile) and as rows in a SQLite results store.
package export

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/epon-sim/epon-sim/sim"
)

// Collector holds one gauge family per ONU statistic, labeled by run.
type Collector struct {
	gatherer prometheus.Gatherer

	PacketsReceived *prometheus.GaugeVec
	PacketsSent     *prometheus.GaugeVec
	PacketsDropped  *prometheus.GaugeVec
	AverageDelay    *prometheus.GaugeVec
	Energy          *prometheus.GaugeVec
	TimeInState     *prometheus.GaugeVec
	Cycles          *prometheus.GaugeVec
	Events          *prometheus.GaugeVec
}

var onuLabels = []string{"policy", "seed", "onu"}

// NewCollector registers the EPON gauges against reg, defaulting to the
// global registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	gauges := []struct {
		dst    **prometheus.GaugeVec
		name   string
		help   string
		labels []string
	}{
		{&c.PacketsReceived, "epon_onu_packets_received", "Packets generated at the ONU during the run.", onuLabels},
		{&c.PacketsSent, "epon_onu_packets_sent", "Packets transmitted upstream by the ONU.", onuLabels},
		{&c.PacketsDropped, "epon_onu_packets_dropped", "Packets dropped on a full ONU queue.", onuLabels},
		{&c.AverageDelay, "epon_onu_average_delay_seconds", "Mean queueing plus transmission delay of sent packets.", onuLabels},
		{&c.Energy, "epon_onu_energy_ratio", "Energy consumed relative to an always-on ONU.", onuLabels},
		{&c.TimeInState, "epon_onu_state_seconds", "Simulated time spent in each power state.", []string{"policy", "seed", "onu", "state"}},
		{&c.Cycles, "epon_olt_dba_cycles", "DBA cycles run by the OLT.", []string{"policy", "seed"}},
		{&c.Events, "epon_sim_events_dispatched", "Events dispatched by the simulator.", []string{"policy", "seed"}},
	}
	for _, g := range gauges {
		vec, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: g.name, Help: g.help}, g.labels), g.name)
		if err != nil {
			return nil, err
		}
		*g.dst = vec
	}
	return c, nil
}

// Observe sets every gauge from the statistics of a finished run.
func (c *Collector) Observe(m *sim.Metrics) {
	if c == nil || m == nil {
		return
	}
	seed := strconv.FormatInt(m.Seed, 10)
	c.Cycles.WithLabelValues(m.Policy, seed).Set(float64(m.Cycles))
	c.Events.WithLabelValues(m.Policy, seed).Set(float64(m.EventsDispatched))
	for _, o := range m.ONUs {
		onu := strconv.Itoa(o.ONU)
		c.PacketsReceived.WithLabelValues(m.Policy, seed, onu).Set(float64(o.PacketsReceived))
		c.PacketsSent.WithLabelValues(m.Policy, seed, onu).Set(float64(o.PacketsSent))
		c.PacketsDropped.WithLabelValues(m.Policy, seed, onu).Set(float64(o.PacketsDropped))
		c.AverageDelay.WithLabelValues(m.Policy, seed, onu).Set(o.AverageDelay)
		c.Energy.WithLabelValues(m.Policy, seed, onu).Set(o.EnergyConsumption)
		for _, s := range sim.ONUStates {
			c.TimeInState.WithLabelValues(m.Policy, seed, onu, string(s)).Set(o.TimeInState[s])
		}
	}
}

// WriteTextfile writes everything gathered so far in the text exposition
// format, for the node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
