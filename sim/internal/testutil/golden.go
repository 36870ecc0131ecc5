// Package testutil provides shared assertion helpers for the simulator's
// test packages. It must not import sim/ so internal sim tests can use it.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertTimeEqual compares two simulation timestamps in seconds with an
// absolute tolerance of one nanosecond, the resolution of the verbose trace.
func AssertTimeEqual(t *testing.T, name string, want, got float64) {
	t.Helper()
	if math.Abs(want-got) > 1e-9 {
		t.Errorf("%s: got %.12f, want %.12f", name, got, want)
	}
}
