package dba

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTable_Aggregates(t *testing.T) {
	// GIVEN a table for 4 ONUs
	table := NewReportTable(4)

	// WHEN three ONUs report, one of them with an empty queue
	require.NoError(t, table.Add(0, 1000))
	require.NoError(t, table.Add(2, 0))
	require.NoError(t, table.Add(3, 500))

	// THEN aggregates count only nonzero requests as active
	assert.Equal(t, int64(1500), table.TotalRequested())
	assert.Equal(t, 2, table.ActiveONUs())
	assert.Equal(t, 2, table.InactiveONUs())
	assert.Nil(t, table.Report(1))
	assert.Len(t, table.Reports(), 3)
}

func TestReportTable_SecondReportReplacesFirst(t *testing.T) {
	table := NewReportTable(2)
	require.NoError(t, table.Add(1, 1000))
	table.SetGrant(1, 2000)

	require.NoError(t, table.Add(1, 0))

	assert.Equal(t, int64(0), table.TotalRequested())
	assert.Equal(t, int64(0), table.TotalGranted())
	assert.Equal(t, 0, table.ActiveONUs())
	assert.Len(t, table.Reports(), 1)
}

func TestReportTable_UnknownONU(t *testing.T) {
	table := NewReportTable(2)
	err := table.Add(2, 10)
	assert.True(t, errors.Is(err, ErrUnknownONU))
	assert.Error(t, table.Add(-1, 10))
	assert.Error(t, table.Add(0, -10))
}

func TestReportTable_CompleteAndClear(t *testing.T) {
	// GIVEN a table where only ONU 1 reported
	table := NewReportTable(3)
	require.NoError(t, table.Add(1, 700))

	// WHEN it is completed
	table.Complete()

	// THEN silent ONUs hold zero-request reports and aggregates are unchanged
	require.Len(t, table.Reports(), 3)
	assert.Equal(t, int64(0), table.Report(0).Requested)
	assert.Equal(t, int64(700), table.TotalRequested())
	assert.Equal(t, 1, table.ActiveONUs())

	// WHEN it is cleared
	table.Clear()

	// THEN it is empty again
	assert.Empty(t, table.Reports())
	assert.Equal(t, int64(0), table.TotalRequested())
	assert.Equal(t, 0, table.ActiveONUs())
}
