// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/epon-sim/epon-sim/sim/trace"
	"github.com/epon-sim/epon-sim/sim/traffic"
)

// ctxCheckInterval is how many events are dispatched between context checks.
const ctxCheckInterval = 4096

// onuHandlers maps each ONU-owned event kind to its handler.
var onuHandlers = map[EventKind]func(*ONU, Event) error{
	PacketArrival:      (*ONU).handlePacketArrival,
	PacketDrop:         (*ONU).handlePacketDrop,
	PacketTransmission: (*ONU).handlePacketTransmission,
	TrafficReport:      (*ONU).handleTrafficReport,
	TransmissionSlot:   (*ONU).handleTransmissionSlot,
	StateTransition:    (*ONU).handleStateTransition,
}

// Option configures optional Simulator outputs.
type Option func(*Simulator)

// WithTraceWriter emits the verbose per-event trace and per-cycle report dump to w.
func WithTraceWriter(w io.Writer) Option {
	return func(s *Simulator) { s.verbose = trace.NewWriter(w) }
}

// WithDecisionTrace records DBA cycles (and ONU transitions, depending on its level) into st.
func WithDecisionTrace(st *trace.SimulationTrace) Option {
	return func(s *Simulator) { s.Trace = st }
}

// Simulator is the core object that holds the scheduler, the OLT, the ONUs and the event loop.
type Simulator struct {
	Config    Config
	Scheduler *Scheduler
	OLT       *OLT
	ONUs      []*ONU
	// Trace holds DBA decision records when enabled with WithDecisionTrace.
	Trace *trace.SimulationTrace

	verbose    *trace.Writer
	rng        *PartitionedRNG
	dispatched uint64
	ran        bool
}

// NewSimulator validates cfg and builds a simulator with every initial event scheduled.
func NewSimulator(cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		Config:    cfg,
		Scheduler: NewScheduler(cfg.Horizon),
		rng:       NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(s)
	}

	olt, err := NewOLT(cfg, s.Scheduler)
	if err != nil {
		return nil, err
	}
	olt.decided = s.Trace
	olt.verbose = s.verbose
	if err := olt.Start(); err != nil {
		return nil, err
	}
	s.OLT = olt

	s.ONUs = make([]*ONU, 0, cfg.Network.NumONUs)
	for id := 0; id < cfg.Network.NumONUs; id++ {
		gen, err := traffic.NewGenerator(cfg.ProfileFor(id), s.rng.ForTraffic(id))
		if err != nil {
			return nil, fmt.Errorf("ONU %d: %w", id, err)
		}
		onu := NewONU(id, cfg, s.Scheduler, olt, gen)
		if err := olt.Register(onu); err != nil {
			return nil, err
		}
		if err := onu.Start(); err != nil {
			return nil, fmt.Errorf("starting ONU %d: %w", id, err)
		}
		s.ONUs = append(s.ONUs, onu)
	}
	return s, nil
}

// Run dispatches events until none remain before the horizon.
func (s *Simulator) Run() error {
	return s.RunContext(context.Background())
}

// RunContext is Run with cancellation. The first handler error stops the run.
func (s *Simulator) RunContext(ctx context.Context) error {
	if s.ran {
		return errors.New("simulator has already run")
	}
	s.ran = true
	for {
		if s.dispatched%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ev, ok := s.Scheduler.PopEarliest()
		if !ok {
			break
		}
		s.dispatched++
		logrus.Debugf("[%.9f] Executing %s on %s", ev.Time, ev.Kind, ev.Target)
		if err := s.dispatch(ev); err != nil {
			return fmt.Errorf("at %.9f: %w", ev.Time, err)
		}
	}
	if err := s.verbose.Err(); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	logrus.Infof("[%.9f] Simulation ended: %d events, %d DBA cycles", s.Config.Horizon, s.dispatched, s.OLT.Cycles())
	return nil
}

func (s *Simulator) dispatch(ev Event) error {
	if ev.Target == OLTID {
		if ev.Kind != GateMessages {
			return fmt.Errorf("OLT cannot handle %s: %w", ev.Kind, ErrInvariant)
		}
		return s.OLT.handleGateMessages(ev)
	}
	id := int(ev.Target)
	if id < 0 || id >= len(s.ONUs) {
		return fmt.Errorf("%s for unknown %s: %w", ev.Kind, ev.Target, ErrInvariant)
	}
	handle, ok := onuHandlers[ev.Kind]
	if !ok {
		return fmt.Errorf("%s cannot handle %s: %w", ev.Target, ev.Kind, ErrInvariant)
	}
	onu := s.ONUs[id]
	from := onu.state
	if err := handle(onu, ev); err != nil {
		return err
	}
	s.record(onu, ev, from)
	return nil
}

// record emits the verbose trace line of a handled ONU event.
func (s *Simulator) record(onu *ONU, ev Event, from ONUState) {
	component, kind := ev.Target.String(), ev.Kind.String()
	switch ev.Kind {
	case PacketArrival, PacketDrop, PacketTransmission:
		s.verbose.Event(ev.Time, component, kind, ev.PacketSize, onu.QueueBits())
	case TransmissionSlot:
		s.verbose.Event(ev.Time, component, kind, ev.Window, onu.QueueBits())
	case StateTransition:
		s.verbose.Event(ev.Time, component, kind, ev.State)
		s.Trace.RecordTransition(trace.TransitionRecord{ONU: onu.ID, Clock: ev.Time, From: string(from), To: string(ev.State)})
	default:
		s.verbose.Event(ev.Time, component, kind)
	}
}

// EventsDispatched returns the number of events handled so far.
func (s *Simulator) EventsDispatched() uint64 {
	return s.dispatched
}

// Metrics returns the end-of-run statistics, crediting every ONU's final
// state up to the horizon.
func (s *Simulator) Metrics() *Metrics {
	m := &Metrics{
		Horizon:          s.Config.Horizon,
		Seed:             s.Config.Seed,
		Policy:           s.Config.Network.Policy,
		NumONUs:          s.Config.Network.NumONUs,
		EventsDispatched: s.dispatched,
		Cycles:           s.OLT.Cycles(),
		ONUs:             make([]ONUStatistics, 0, len(s.ONUs)),
	}
	for _, onu := range s.ONUs {
		m.ONUs = append(m.ONUs, onu.Finalize(s.Config.Horizon))
	}
	return m
}
