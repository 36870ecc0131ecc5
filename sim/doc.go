// Package sim provides the discrete-event simulation engine for the upstream
// channel of an Ethernet Passive Optical Network (EPON).
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: the closed set of event kinds and the Event payload
//   - onu.go: the ONU power state machine (OFF → OFF_WAIT → TRANSITION_TO_ON → ON)
//     and its REPORT/transmission protocol
//   - simulator.go: construction, the dispatch table and the event loop
//
// # Architecture
//
// One Scheduler orders all pending events by (time, insertion sequence) and
// owns the clock. Handlers never block; they mutate local state and schedule
// follow-up events. The OLT closes a DBA cycle with a GateMessages event:
// it runs the configured policy over the reports received during the cycle,
// lays out one transmission slot per ONU and schedules the next boundary.
//
// Sub-packages hold the pieces that do not depend on the engine:
//   - sim/dba/: report table and bandwidth allocation policies
//   - sim/traffic/: packet arrival generators and traffic profile files
//   - sim/trace/: DBA decision records and the verbose trace writer
//   - sim/export/: Prometheus and SQLite exporters for finished runs
//
// All times are float64 seconds; all sizes are int64 bits.
package sim
