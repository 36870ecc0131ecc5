// Package dba implements the per-cycle report table and the Dynamic Bandwidth
// Allocation policies the OLT runs against it.
// This package has no dependencies on sim/; policies are pure functions over a ReportTable.
package dba

import (
	"errors"
	"fmt"
)

// ReportSize is the size of a REPORT message in bits (64-byte frame).
// Every registered ONU spends one ReportSize of channel time per cycle.
const ReportSize int64 = 8 * 64

// ErrUnknownONU is returned when a report names an ONU outside the table.
var ErrUnknownONU = errors.New("unknown ONU")

// BandwidthReport is one ONU's request and the grant the policy assigned to it.
type BandwidthReport struct {
	ONU       int   // ONU identifier
	Requested int64 // queued bits advertised by the ONU
	Granted   int64 // bits the ONU may transmit in the next cycle
}

// ReportTable collects the reports received during one DBA cycle.
// Entries are unique per ONU id; aggregates are kept in sync by Add and SetGrant.
type ReportTable struct {
	reports        []*BandwidthReport // indexed by ONU id; nil = no report this cycle
	totalRequested int64
	totalGranted   int64
	activeONUs     int
}

// NewReportTable creates an empty table for numONUs registered ONUs.
func NewReportTable(numONUs int) *ReportTable {
	return &ReportTable{reports: make([]*BandwidthReport, numONUs)}
}

// NumONUs returns the number of registered ONUs.
func (t *ReportTable) NumONUs() int {
	return len(t.reports)
}

// Add registers a report from onu. A second report from the same ONU in the
// same cycle replaces the first one.
func (t *ReportTable) Add(onu int, requested int64) error {
	if onu < 0 || onu >= len(t.reports) {
		return fmt.Errorf("report from ONU %d: %w", onu, ErrUnknownONU)
	}
	if requested < 0 {
		return fmt.Errorf("report from ONU %d: negative request %d", onu, requested)
	}
	if old := t.reports[onu]; old != nil {
		t.forget(old)
	}
	t.reports[onu] = &BandwidthReport{ONU: onu, Requested: requested}
	t.totalRequested += requested
	if requested > 0 {
		t.activeONUs++
	}
	return nil
}

func (t *ReportTable) forget(r *BandwidthReport) {
	t.totalRequested -= r.Requested
	t.totalGranted -= r.Granted
	if r.Requested > 0 {
		t.activeONUs--
	}
}

// Report returns the report of onu, or nil if it sent none this cycle.
func (t *ReportTable) Report(onu int) *BandwidthReport {
	if onu < 0 || onu >= len(t.reports) {
		return nil
	}
	return t.reports[onu]
}

// Complete synthesizes a zero-request report for every ONU that sent none,
// so every registered ONU gets a slot.
func (t *ReportTable) Complete() {
	for id, r := range t.reports {
		if r == nil {
			t.reports[id] = &BandwidthReport{ONU: id}
		}
	}
}

// SetGrant assigns the grant of onu and updates the aggregate granted size.
func (t *ReportTable) SetGrant(onu int, granted int64) {
	r := t.reports[onu]
	t.totalGranted += granted - r.Granted
	r.Granted = granted
}

// Reports returns the reports present in the table in ONU-id order.
func (t *ReportTable) Reports() []*BandwidthReport {
	out := make([]*BandwidthReport, 0, len(t.reports))
	for _, r := range t.reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// TotalRequested returns the aggregate requested size in bits.
func (t *ReportTable) TotalRequested() int64 { return t.totalRequested }

// TotalGranted returns the aggregate granted size in bits.
func (t *ReportTable) TotalGranted() int64 { return t.totalGranted }

// ActiveONUs returns the number of ONUs with a nonzero request.
func (t *ReportTable) ActiveONUs() int { return t.activeONUs }

// InactiveONUs returns the number of registered ONUs with no pending data.
func (t *ReportTable) InactiveONUs() int { return len(t.reports) - t.activeONUs }

// Clear removes all reports. Called by the OLT once slots have been laid out.
func (t *ReportTable) Clear() {
	for i := range t.reports {
		t.reports[i] = nil
	}
	t.totalRequested = 0
	t.totalGranted = 0
	t.activeONUs = 0
}
