package trace

import (
	"fmt"
	"io"
	"sort"
)

// Writer renders the verbose trace: one line per dispatched event and a
// report dump after every DBA cycle. A nil *Writer discards everything.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Event writes "<clock> <component> <kind> <fields...>".
func (tw *Writer) Event(clock float64, component, kind string, fields ...any) {
	if tw == nil || tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, "%.9f %s %s", clock, component, kind)
	for _, f := range fields {
		if tw.err == nil {
			_, tw.err = fmt.Fprintf(tw.w, " %v", f)
		}
	}
	if tw.err == nil {
		_, tw.err = io.WriteString(tw.w, "\n")
	}
}

// Cycle dumps the reports of a DBA cycle, in ONU order, followed by the totals.
func (tw *Writer) Cycle(rec CycleRecord) {
	if tw == nil || tw.err != nil {
		return
	}
	grants := make([]GrantRecord, len(rec.Grants))
	copy(grants, rec.Grants)
	sort.Slice(grants, func(i, j int) bool { return grants[i].ONU < grants[j].ONU })
	for _, g := range grants {
		if _, tw.err = fmt.Fprintf(tw.w, "REPORT ONU %d qsize=%d tsize=%d\n", g.ONU, g.Requested, g.Granted); tw.err != nil {
			return
		}
	}
	_, tw.err = fmt.Fprintf(tw.w, "OVERALL ONUs qsize=%d tsize=%d active=%d\n",
		rec.TotalRequested, rec.TotalGranted, rec.ActiveONUs)
}

// Err returns the first write error, if any.
func (tw *Writer) Err() error {
	if tw == nil {
		return nil
	}
	return tw.err
}
