package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/epon-sim/epon-sim/sim/dba"
	"github.com/epon-sim/epon-sim/sim/traffic"
)

var (
	// ErrInvariant is returned when a handler detects corrupted ONU state,
	// such as a negative queue occupancy or transmission window.
	ErrInvariant = errors.New("invariant violated")
	// ErrInvalidTransition is returned for a state change outside the ONU power state machine.
	ErrInvalidTransition = errors.New("invalid ONU state transition")
)

// ONUState is the power state of an ONU.
type ONUState string

const (
	StateOff            ONUState = "OFF"              // dozing, receiver off
	StateOffWait        ONUState = "OFF_WAIT"         // dozing, wake-up aligned to the next cycle pending
	StateTransitionToOn ONUState = "TRANSITION_TO_ON" // powering up
	StateOn             ONUState = "ON"               // active, uses its transmission slots
)

// ONUStates lists the power states in reporting order.
var ONUStates = []ONUState{StateOff, StateOffWait, StateTransitionToOn, StateOn}

var validTransitions = map[ONUState][]ONUState{
	StateOff:            {StateOffWait, StateTransitionToOn},
	StateOffWait:        {StateTransitionToOn},
	StateTransitionToOn: {StateOn},
	StateOn:             {StateOff},
}

func canTransition(from, to ONUState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// eventScheduler is the part of the Scheduler an ONU or the OLT needs.
type eventScheduler interface {
	Now() float64
	Schedule(Event) (Handle, error)
	Cancel(Handle) bool
}

// ReportSink receives the REPORT messages ONUs send upstream.
type ReportSink interface {
	RegisterReport(onu int, requested int64) error
}

// ONU models one optical network unit: a bounded packet FIFO, the REPORT/GATE
// transmission protocol and the energy-aware power state machine.
type ONU struct {
	ID int

	cfg          ONUConfig
	cycle        float64 // base DBA cycle, used to align wake-ups
	numONUs      int
	capacity     int64 // uplink bits per second
	demandDriven bool
	sched        eventScheduler
	olt          ReportSink
	gen          traffic.Generator
	packetSize   int64
	queue        *PacketQueue

	state      ONUState
	entered    bool    // initial state entered
	lastChange float64 // time of the last state change
	threshold  int64   // wake threshold in bits
	window     int64   // bits left in the current transmission window
	wake       Handle  // pending wake event (refresh timeout or threshold wake)

	// Active-period counters for the dynamic threshold.
	periodSent  int64
	periodDelay float64

	stats ONUStatistics
}

// NewONU creates ONU id. Nothing is scheduled until Start is called.
func NewONU(id int, cfg Config, sched eventScheduler, olt ReportSink, gen traffic.Generator) *ONU {
	size := gen.PacketSize()
	o := &ONU{
		ID:           id,
		cfg:          cfg.ONU,
		cycle:        cfg.Network.CycleLength,
		numONUs:      cfg.Network.NumONUs,
		capacity:     cfg.Network.UplinkCapacity,
		demandDriven: dba.IsDemandDriven(cfg.Network.Policy),
		sched:        sched,
		olt:          olt,
		gen:          gen,
		packetSize:   size,
		queue:        NewPacketQueue(size * int64(cfg.ONU.MaxQueue)),
		threshold:    size * int64(cfg.ONU.QueueThreshold),
		window:       dba.ReportSize,
		state:        StateOn,
		stats:        newONUStatistics(id),
	}
	if cfg.ONU.EnergyAware {
		o.state = StateOff
	}
	return o
}

// Start schedules the initial state entry, the first arrival and, for an
// always-on ONU, a bootstrap slot so it reports during the first cycle.
func (o *ONU) Start() error {
	if _, err := o.sched.Schedule(Event{Time: 0, Target: o.target(), Kind: StateTransition, State: o.state}); err != nil {
		return err
	}
	if err := o.scheduleNextArrival(); err != nil {
		return err
	}
	if o.state == StateOn {
		at := float64(o.ID) * o.cycle / float64(o.numONUs)
		if _, err := o.sched.Schedule(Event{Time: at, Target: o.target(), Kind: TransmissionSlot, Window: dba.ReportSize}); err != nil {
			return err
		}
	}
	return nil
}

func (o *ONU) target() ComponentID { return ComponentID(o.ID) }

// State returns the current power state.
func (o *ONU) State() ONUState { return o.state }

// QueueBits returns the queue occupancy in bits.
func (o *ONU) QueueBits() int64 { return o.queue.Bits() }

// Threshold returns the current wake threshold in bits.
func (o *ONU) Threshold() int64 { return o.threshold }

// Window returns the bits left in the current transmission window.
func (o *ONU) Window() int64 { return o.window }

func (o *ONU) scheduleNextArrival() error {
	_, err := o.sched.Schedule(Event{
		Time:       o.gen.NextArrival(),
		Target:     o.target(),
		Kind:       PacketArrival,
		PacketSize: o.packetSize,
	})
	return err
}

func (o *ONU) handlePacketArrival(ev Event) error {
	o.stats.PacketsReceived++
	if o.queue.Admit(Packet{Arrival: ev.Time, Size: ev.PacketSize}) {
		if o.state == StateOff && o.queue.Bits() >= o.threshold {
			next := StateOffWait
			if o.demandDriven {
				next = StateTransitionToOn
			}
			if err := o.scheduleWake(ev.Time, next); err != nil {
				return err
			}
		}
	} else {
		if o.stats.PacketsDropped == 0 {
			logrus.Warnf("ONU %d queue full (%d bits) at %.9f, dropping packets", o.ID, o.queue.Bits(), ev.Time)
		}
		if _, err := o.sched.Schedule(Event{Time: ev.Time, Target: o.target(), Kind: PacketDrop, PacketSize: ev.PacketSize}); err != nil {
			return err
		}
	}
	return o.scheduleNextArrival()
}

func (o *ONU) handlePacketDrop(_ Event) error {
	o.stats.PacketsDropped++
	return nil
}

func (o *ONU) handleTransmissionSlot(ev Event) error {
	o.window = ev.Window
	if o.state != StateOn {
		return nil
	}
	return o.transmitNext(ev.Time)
}

// transmitNext sends the head packet if it fits in the window while leaving
// room for the report, otherwise sends the report if the window covers it.
func (o *ONU) transmitNext(now float64) error {
	if p, ok := o.queue.Peek(); ok && p.Size <= o.window-dba.ReportSize {
		_, err := o.sched.Schedule(Event{
			Time:       now + float64(p.Size)/float64(o.capacity),
			Target:     o.target(),
			Kind:       PacketTransmission,
			PacketSize: p.Size,
		})
		return err
	}
	if dba.ReportSize <= o.window {
		_, err := o.sched.Schedule(Event{
			Time:   now + float64(dba.ReportSize)/float64(o.capacity),
			Target: o.target(),
			Kind:   TrafficReport,
		})
		return err
	}
	return nil
}

func (o *ONU) handlePacketTransmission(ev Event) error {
	p, err := o.queue.Dequeue()
	if err != nil {
		return fmt.Errorf("ONU %d transmission at %.9f: %w", o.ID, ev.Time, err)
	}
	if p.Size != ev.PacketSize {
		return fmt.Errorf("ONU %d transmitted %d bits but head packet has %d: %w", o.ID, ev.PacketSize, p.Size, ErrInvariant)
	}
	o.window -= p.Size
	if o.window < 0 {
		return fmt.Errorf("ONU %d window %d bits after transmission: %w", o.ID, o.window, ErrInvariant)
	}
	delay := ev.Time - p.Arrival
	if delay < 0 {
		return fmt.Errorf("ONU %d packet delay %.9f: %w", o.ID, delay, ErrInvariant)
	}
	o.stats.PacketsSent++
	o.stats.TotalDelay += delay
	if o.cfg.DynamicThreshold() {
		o.periodSent++
		o.periodDelay += delay
	}
	return o.transmitNext(ev.Time)
}

func (o *ONU) handleTrafficReport(ev Event) error {
	if err := o.olt.RegisterReport(o.ID, o.queue.Bits()); err != nil {
		return err
	}
	o.window -= dba.ReportSize
	if o.window < 0 {
		return fmt.Errorf("ONU %d window %d bits after report: %w", o.ID, o.window, ErrInvariant)
	}
	if o.cfg.EnergyAware && o.state == StateOn && o.queue.Bits() == 0 {
		_, err := o.sched.Schedule(Event{Time: ev.Time, Target: o.target(), Kind: StateTransition, State: StateOff})
		return err
	}
	return nil
}

// scheduleWake replaces the pending wake event with a transition to next at time at.
func (o *ONU) scheduleWake(at float64, next ONUState) error {
	o.sched.Cancel(o.wake)
	h, err := o.sched.Schedule(Event{Time: at, Target: o.target(), Kind: StateTransition, State: next})
	if err != nil {
		return err
	}
	o.wake = h
	return nil
}

func (o *ONU) handleStateTransition(ev Event) error {
	next := ev.State
	initial := !o.entered
	if initial {
		if next != o.state {
			return fmt.Errorf("ONU %d initial entry into %s while in %s: %w", o.ID, next, o.state, ErrInvalidTransition)
		}
	} else if !canTransition(o.state, next) {
		return fmt.Errorf("ONU %d %s -> %s at %.9f: %w", o.ID, o.state, next, ev.Time, ErrInvalidTransition)
	}

	switch next {
	case StateOffWait:
		aligned := math.Ceil((ev.Time+o.cfg.WakeupTime)/o.cycle)*o.cycle - o.cfg.WakeupTime
		if err := o.scheduleWake(max(aligned, ev.Time), StateTransitionToOn); err != nil {
			return err
		}
	case StateTransitionToOn:
		o.sched.Cancel(o.wake)
		o.wake = 0
		if _, err := o.sched.Schedule(Event{Time: ev.Time + o.cfg.WakeupTime, Target: o.target(), Kind: StateTransition, State: StateOn}); err != nil {
			return err
		}
	case StateOff:
		if err := o.scheduleWake(o.refreshTime(ev.Time), StateTransitionToOn); err != nil {
			return err
		}
		if o.cfg.DynamicThreshold() {
			o.adaptThreshold()
		}
	case StateOn:
		o.periodSent = 0
		o.periodDelay = 0
	}

	o.stats.TimeInState[o.state] += ev.Time - o.lastChange
	o.state = next
	o.lastChange = ev.Time
	o.entered = true
	return nil
}

// refreshTime returns when a doze starting at now must end. Fixed-cycle
// policies align the wake-up so the ONU is ON at a cycle boundary.
func (o *ONU) refreshTime(now float64) float64 {
	if o.demandDriven {
		return now + o.cfg.RefreshTimeout
	}
	at := math.Floor((now+o.cfg.RefreshTimeout)/o.cycle)*o.cycle - o.cfg.WakeupTime
	if at < now {
		logrus.Warnf("ONU %d refresh timeout %.9f falls before %.9f; waking immediately", o.ID, at, now)
		return now
	}
	return at
}

// adaptThreshold moves the wake threshold one step against the average delay
// of the active period that just ended.
func (o *ONU) adaptThreshold() {
	step := int64(o.cfg.ThresholdStep) * o.packetSize
	exceeded := o.periodSent > 0 && o.periodDelay/float64(o.periodSent) > o.cfg.TargetDelay
	if exceeded {
		o.threshold = max(o.threshold-step, o.packetSize)
	} else {
		o.threshold += step
	}
	logrus.Debugf("ONU %d wake threshold now %d bits (period: %d packets sent)", o.ID, o.threshold, o.periodSent)
}

// Finalize credits the current state up to horizon and returns the ONU's statistics.
func (o *ONU) Finalize(horizon float64) ONUStatistics {
	st := o.stats
	st.TimeInState = make(map[ONUState]float64, len(ONUStates))
	for s, v := range o.stats.TimeInState {
		st.TimeInState[s] = v
	}
	st.TimeInState[o.state] += horizon - o.lastChange
	st.finish(horizon, o.cfg.DozeEnergyRatio)
	return st
}
