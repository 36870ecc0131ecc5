package dba

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// LimitedCeiling is the per-ONU grant ceiling of the limited policies, in bits.
const LimitedCeiling int64 = 120000 + ReportSize

// ErrUnknownPolicy is returned by Lookup for names not in the registry.
var ErrUnknownPolicy = errors.New("unknown DBA policy")

// AllocateFunc assigns a grant to every report in a completed table.
// budget is the per-cycle capacity budget in bits; demand-driven policies ignore it.
type AllocateFunc func(budget int64, table *ReportTable)

// Policy is a named DBA allocation rule.
type Policy struct {
	Name string
	// DemandDriven policies size each grant from the ONU's request; the OLT
	// recomputes the cycle length from the aggregate grant after every cycle.
	DemandDriven bool
	allocate     AllocateFunc
}

// Apply completes the table with zero-request reports for silent ONUs and
// assigns every grant.
func (p Policy) Apply(budget int64, table *ReportTable) {
	table.Complete()
	p.allocate(budget, table)
}

var policies = map[string]Policy{
	"fixed":         {Name: "fixed", allocate: Fixed},
	"fair":          {Name: "fair", allocate: Fair},
	"proportional":  {Name: "proportional", allocate: Proportional},
	"gated":         {Name: "gated", DemandDriven: true, allocate: Gated},
	"limited":       {Name: "limited", DemandDriven: true, allocate: Limited},
	"limitedExcess": {Name: "limitedExcess", DemandDriven: true, allocate: LimitedExcess},
}

// Lookup returns the policy registered under name.
func Lookup(name string) (Policy, error) {
	p, ok := policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w %q (valid: %v)", ErrUnknownPolicy, name, Names())
	}
	return p, nil
}

// IsValidPolicy returns true if name is a registered policy.
func IsValidPolicy(name string) bool {
	_, ok := policies[name]
	return ok
}

// IsDemandDriven reports whether name is a demand-driven policy (gated, limited, limitedExcess).
func IsDemandDriven(name string) bool {
	return policies[name].DemandDriven
}

// Names returns the registered policy names in sorted order.
func Names() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fixed splits the budget evenly across all registered ONUs.
func Fixed(budget int64, table *ReportTable) {
	n := int64(table.NumONUs())
	if n == 0 {
		return
	}
	for _, r := range table.Reports() {
		table.SetGrant(r.ONU, budget/n)
	}
}

// Fair gives idle ONUs the report overhead and splits the rest evenly among active ONUs.
func Fair(budget int64, table *ReportTable) {
	active := int64(table.ActiveONUs())
	remaining := budget - int64(table.InactiveONUs())*ReportSize
	for _, r := range table.Reports() {
		if r.Requested > 0 {
			table.SetGrant(r.ONU, remaining/active)
		} else {
			table.SetGrant(r.ONU, ReportSize)
		}
	}
}

// Proportional shares the budget left after idle ONUs' overhead in proportion
// to each request, never granting less than the report overhead.
func Proportional(budget int64, table *ReportTable) {
	total := table.TotalRequested()
	remaining := budget - int64(table.InactiveONUs())*ReportSize
	for _, r := range table.Reports() {
		grant := ReportSize
		if total > 0 {
			share := int64(math.Round(float64(r.Requested) * float64(remaining) / float64(total)))
			grant = max(share, ReportSize)
		}
		table.SetGrant(r.ONU, grant)
	}
}

// Gated grants every ONU exactly what it asked for plus the next report.
func Gated(_ int64, table *ReportTable) {
	for _, r := range table.Reports() {
		table.SetGrant(r.ONU, r.Requested+ReportSize)
	}
}

// Limited is Gated capped at LimitedCeiling.
func Limited(_ int64, table *ReportTable) {
	for _, r := range table.Reports() {
		table.SetGrant(r.ONU, min(r.Requested+ReportSize, LimitedCeiling))
	}
}

// LimitedExcess is Limited, followed by a second pass that redistributes the
// headroom left by under-ceiling ONUs evenly among the ONUs held at the ceiling.
func LimitedExcess(_ int64, table *ReportTable) {
	var excess int64
	var atCeiling int64
	for _, r := range table.Reports() {
		want := r.Requested + ReportSize
		if want < LimitedCeiling {
			table.SetGrant(r.ONU, want)
			excess += LimitedCeiling - want
		} else {
			table.SetGrant(r.ONU, LimitedCeiling)
			atCeiling++
		}
	}
	if atCeiling == 0 || excess == 0 {
		return
	}
	share := LimitedCeiling + excess/atCeiling
	for _, r := range table.Reports() {
		if r.Granted == LimitedCeiling {
			table.SetGrant(r.ONU, min(r.Requested+ReportSize, share))
		}
	}
}
