package sim

import "fmt"

// EventKind enumerates every event the simulator dispatches.
// The set is closed: Simulator.dispatch has one handler per kind.
type EventKind int

const (
	// PacketArrival: a packet reaches an ONU's queue (payload: PacketSize).
	PacketArrival EventKind = iota
	// PacketDrop: an arriving packet found the queue full (payload: PacketSize).
	PacketDrop
	// PacketTransmission: the head packet finished its upstream transmission (payload: PacketSize).
	PacketTransmission
	// TrafficReport: an ONU finished sending its REPORT message.
	TrafficReport
	// TransmissionSlot: an ONU's granted window opens (payload: Window).
	TransmissionSlot
	// StateTransition: an ONU enters a power state (payload: State).
	StateTransition
	// GateMessages: the OLT closes a DBA cycle and sends the next grants.
	GateMessages
)

var eventKindNames = map[EventKind]string{
	PacketArrival:      "PacketArrivalEvent",
	PacketDrop:         "PacketDropEvent",
	PacketTransmission: "PacketTransmissionEvent",
	TrafficReport:      "TrafficReportEvent",
	TransmissionSlot:   "TransmissionSlotEvent",
	StateTransition:    "StateTransitionEvent",
	GateMessages:       "GateMessagesEvent",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ComponentID names the component that owns an event: OLTID or an ONU index.
type ComponentID int

// OLTID is the target of OLT events.
const OLTID ComponentID = -1

func (c ComponentID) String() string {
	if c == OLTID {
		return "OLT"
	}
	return fmt.Sprintf("ONU %d", int(c))
}

// Event is a scheduled simulation event. Only the payload field matching
// Kind is meaningful.
type Event struct {
	Time   float64     // simulation time in seconds
	Target ComponentID // owning component
	Kind   EventKind

	PacketSize int64    // PacketArrival, PacketDrop, PacketTransmission (bits)
	Window     int64    // TransmissionSlot (bits)
	State      ONUState // StateTransition
}

func (e Event) String() string {
	return fmt.Sprintf("%.9f %s %s", e.Time, e.Target, e.Kind)
}
