// Tracks per-ONU statistics: packet counters, queueing delay, time spent in
// each power state and the resulting relative energy consumption.

package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ONUStatistics is the end-of-run summary of one ONU.
type ONUStatistics struct {
	ONU               int                  `json:"onu"`
	PacketsReceived   int64                `json:"packets_received"`
	PacketsSent       int64                `json:"packets_sent"`
	PacketsDropped    int64                `json:"packets_dropped"`
	TotalDelay        float64              `json:"total_delay"`
	AverageDelay      float64              `json:"average_delay"` // 0 if nothing was sent
	TimeInState       map[ONUState]float64 `json:"time_in_state"`
	EnergyConsumption float64              `json:"energy_consumption"` // relative to always-on
}

func newONUStatistics(id int) ONUStatistics {
	st := ONUStatistics{ONU: id, TimeInState: make(map[ONUState]float64, len(ONUStates))}
	for _, s := range ONUStates {
		st.TimeInState[s] = 0
	}
	return st
}

// finish derives the average delay and energy once TimeInState covers the whole run.
func (st *ONUStatistics) finish(horizon, dozeRatio float64) {
	if st.PacketsSent > 0 {
		st.AverageDelay = st.TotalDelay / float64(st.PacketsSent)
	}
	active := st.TimeInState[StateTransitionToOn] + st.TimeInState[StateOn]
	doze := st.TimeInState[StateOff] + st.TimeInState[StateOffWait]
	st.EnergyConsumption = (active + dozeRatio*doze) / horizon
}

// Metrics aggregates the statistics of a finished run for final reporting.
type Metrics struct {
	Horizon          float64         `json:"horizon"`
	Seed             int64           `json:"seed"`
	Policy           string          `json:"policy"`
	NumONUs          int             `json:"num_onus"`
	EventsDispatched uint64          `json:"events_dispatched"`
	Cycles           int             `json:"dba_cycles"`
	ONUs             []ONUStatistics `json:"onus"`
}

// Totals returns the packet counters summed over all ONUs.
func (m *Metrics) Totals() (received, sent, dropped int64) {
	for _, o := range m.ONUs {
		received += o.PacketsReceived
		sent += o.PacketsSent
		dropped += o.PacketsDropped
	}
	return received, sent, dropped
}

// MeanDelay returns the average packet delay over every packet sent by any ONU.
func (m *Metrics) MeanDelay() float64 {
	var delay float64
	var sent int64
	for _, o := range m.ONUs {
		delay += o.TotalDelay
		sent += o.PacketsSent
	}
	if sent == 0 {
		return 0
	}
	return delay / float64(sent)
}

// MeanEnergy returns the energy consumption averaged over ONUs.
func (m *Metrics) MeanEnergy() float64 {
	if len(m.ONUs) == 0 {
		return 0
	}
	total := 0.0
	for _, o := range m.ONUs {
		total += o.EnergyConsumption
	}
	return total / float64(len(m.ONUs))
}

// Print writes the per-ONU statistics report.
func (m *Metrics) Print(w io.Writer) error {
	for _, o := range m.ONUs {
		lines := []string{
			fmt.Sprintf("ONU %d STATISTICS", o.ONU),
			fmt.Sprintf("ONU %d Packets received: %d", o.ONU, o.PacketsReceived),
			fmt.Sprintf("ONU %d Packets sent: %d", o.ONU, o.PacketsSent),
			fmt.Sprintf("ONU %d Packets dropped: %d", o.ONU, o.PacketsDropped),
		}
		if o.PacketsSent > 0 {
			lines = append(lines, fmt.Sprintf("ONU %d Average packet delay: %.9f", o.ONU, o.AverageDelay))
		}
		for _, s := range ONUStates {
			lines = append(lines, fmt.Sprintf("ONU %d Time in state %s: %.9f", o.ONU, s, o.TimeInState[s]))
		}
		lines = append(lines, fmt.Sprintf("ONU %d Energy consumption: %.9f", o.ONU, o.EnergyConsumption))
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveResults writes the metrics as indented JSON to path.
func (m *Metrics) SaveResults(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}
