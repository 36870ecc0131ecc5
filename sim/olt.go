package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/epon-sim/epon-sim/sim/dba"
	"github.com/epon-sim/epon-sim/sim/trace"
)

// OLT is the optical line terminal. At every cycle boundary it runs the DBA
// policy over the reports received during the cycle and lays out the next
// round of transmission slots.
type OLT struct {
	cfg    NetworkConfig
	policy dba.Policy
	budget int64   // bits per base cycle, fixed for the run
	cycle  float64 // current cycle length; demand-driven policies resize it
	sched  eventScheduler
	table  *dba.ReportTable
	onus   []*ONU

	cycles  int
	decided *trace.SimulationTrace
	verbose *trace.Writer
}

// NewOLT creates the OLT for cfg. The policy name must already be validated.
func NewOLT(cfg Config, sched eventScheduler) (*OLT, error) {
	policy, err := dba.Lookup(cfg.Network.Policy)
	if err != nil {
		return nil, err
	}
	return &OLT{
		cfg:    cfg.Network,
		policy: policy,
		budget: cfg.Budget(),
		cycle:  cfg.Network.CycleLength,
		sched:  sched,
		table:  dba.NewReportTable(cfg.Network.NumONUs),
	}, nil
}

// Register adds onu to the set of ONUs granted a slot every cycle.
func (olt *OLT) Register(onu *ONU) error {
	if onu.ID != len(olt.onus) {
		return fmt.Errorf("ONU %d registered out of order (expected %d): %w", onu.ID, len(olt.onus), ErrInvariant)
	}
	olt.onus = append(olt.onus, onu)
	return nil
}

// Start schedules the first cycle boundary one base cycle into the run.
func (olt *OLT) Start() error {
	_, err := olt.sched.Schedule(Event{Time: olt.cycle, Target: OLTID, Kind: GateMessages})
	return err
}

// RegisterReport implements ReportSink.
func (olt *OLT) RegisterReport(onu int, requested int64) error {
	if err := olt.table.Add(onu, requested); err != nil {
		return fmt.Errorf("OLT: %w", err)
	}
	return nil
}

// Budget returns the per-cycle grant budget in bits.
func (olt *OLT) Budget() int64 { return olt.budget }

// CycleLength returns the length of the current cycle in seconds.
func (olt *OLT) CycleLength() float64 { return olt.cycle }

// Cycles returns the number of DBA cycles run so far.
func (olt *OLT) Cycles() int { return olt.cycles }

// Policy returns the DBA policy in use.
func (olt *OLT) Policy() dba.Policy { return olt.policy }

func (olt *OLT) handleGateMessages(ev Event) error {
	olt.policy.Apply(olt.budget, olt.table)

	if olt.policy.DemandDriven {
		olt.cycle = float64(olt.cfg.NumONUs)*olt.cfg.GuardTime +
			float64(olt.table.TotalGranted())/float64(olt.cfg.UplinkCapacity)
		logrus.Debugf("[%.9f] %s: next cycle %.9f s (%d bits granted)",
			ev.Time, olt.policy.Name, olt.cycle, olt.table.TotalGranted())
	}

	reports := olt.table.Reports()
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Granted > reports[j].Granted
	})

	rec := trace.CycleRecord{
		Clock:          ev.Time,
		Policy:         olt.policy.Name,
		CycleLength:    olt.cycle,
		Grants:         make([]trace.GrantRecord, 0, len(reports)),
		TotalRequested: olt.table.TotalRequested(),
		TotalGranted:   olt.table.TotalGranted(),
		ActiveONUs:     olt.table.ActiveONUs(),
	}
	at := ev.Time
	for _, r := range reports {
		if r.Granted < dba.ReportSize {
			return fmt.Errorf("%s granted ONU %d only %d bits: %w", olt.policy.Name, r.ONU, r.Granted, ErrInvariant)
		}
		if _, err := olt.sched.Schedule(Event{Time: at, Target: ComponentID(r.ONU), Kind: TransmissionSlot, Window: r.Granted}); err != nil {
			return err
		}
		rec.Grants = append(rec.Grants, trace.GrantRecord{ONU: r.ONU, Requested: r.Requested, Granted: r.Granted, SlotStart: at})
		at += float64(r.Granted)/float64(olt.cfg.UplinkCapacity) + olt.cfg.GuardTime
	}

	olt.decided.RecordCycle(rec)
	olt.verbose.Event(ev.Time, OLTID.String(), ev.Kind.String())
	olt.verbose.Cycle(rec)
	olt.cycles++
	olt.table.Clear()

	_, err := olt.sched.Schedule(Event{Time: ev.Time + olt.cycle, Target: OLTID, Kind: GateMessages})
	return err
}
