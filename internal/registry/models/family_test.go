package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFamiliesValidate(t *testing.T) {
	set, err := NewFamilySet(DefaultFamilies())
	require.NoError(t, err)
	assert.Len(t, set, 6)

	f, ok := set.Get("temple")
	require.True(t, ok)
	assert.Equal(t, "TRN", f.Prefix)
	assert.Equal(t, 7, f.Width)
	assert.False(t, f.YearScoped)

	f, ok = set.Get("silmatha")
	require.True(t, ok)
	assert.True(t, f.YearScoped)
}

func TestNewFamilySetRejectsDuplicates(t *testing.T) {
	base := Family{Name: "temple", Table: "temple_records", Prefix: "TRN", Width: 7, Transitions: PrintThenApprove()}

	_, err := NewFamilySet([]Family{base, base})
	assert.ErrorContains(t, err, "duplicate family name")

	other := base
	other.Name = "shrine"
	_, err = NewFamilySet([]Family{base, other})
	assert.ErrorContains(t, err, "table")

	other.Table = "shrine_records"
	_, err = NewFamilySet([]Family{base, other})
	assert.ErrorContains(t, err, "prefix")
}

func TestFamilyValidate(t *testing.T) {
	valid := Family{Name: "temple", Table: "temple_records", Prefix: "TRN", Width: 7, Transitions: PrintThenApprove()}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Family){
		"empty name":      func(f *Family) { f.Name = "" },
		"bad table":       func(f *Family) { f.Table = "temple-records; DROP" },
		"lowercase":       func(f *Family) { f.Prefix = "trn" },
		"zero width":      func(f *Family) { f.Width = 0 },
		"no transitions":  func(f *Family) { f.Transitions = nil },
		"width too large": func(f *Family) { f.Width = 19 },
	}
	for name, mutate := range cases {
		f := valid
		mutate(&f)
		assert.Error(t, f.Validate(), name)
	}
}

func TestPrintThenApproveEdges(t *testing.T) {
	table := PrintThenApprove()

	next, ok := table.Next(StatusPending, ActionMarkPrinted)
	require.True(t, ok)
	assert.Equal(t, StatusPrinted, next)

	next, ok = table.Next(StatusPrinted, ActionAttachScan)
	require.True(t, ok)
	assert.Equal(t, StatusPendApproval, next)

	next, ok = table.Next(StatusPendApproval, ActionApprove)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, next)

	next, ok = table.Next(StatusPendApproval, ActionReject)
	require.True(t, ok)
	assert.Equal(t, StatusRejected, next)

	// No approval before the scan comes back; no print edge from terminal.
	_, ok = table.Next(StatusPending, ActionApprove)
	assert.False(t, ok)
	_, ok = table.Next(StatusCompleted, ActionMarkPrinted)
	assert.False(t, ok)

	// reset_to_pending is legal from every status, PENDING included.
	for _, status := range []WorkflowStatus{StatusPending, StatusPrinted, StatusPendApproval, StatusCompleted, StatusRejected} {
		next, ok := table.Next(status, ActionResetToPending)
		require.True(t, ok, "reset from %s", status)
		assert.Equal(t, StatusPending, next)
	}
}

func TestApproveThenPrintEdges(t *testing.T) {
	table := ApproveThenPrint()

	next, ok := table.Next(StatusPending, ActionAttachScan)
	require.True(t, ok)
	assert.Equal(t, StatusPendApproval, next)

	next, ok = table.Next(StatusPendApproval, ActionApprove)
	require.True(t, ok)
	assert.Equal(t, StatusApproved, next)

	// Printing the approved certificate completes the record.
	next, ok = table.Next(StatusApproved, ActionMarkPrinted)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, next)

	_, ok = table.Next(StatusPending, ActionMarkPrinted)
	assert.False(t, ok)

	for _, status := range []WorkflowStatus{StatusPending, StatusPendApproval, StatusApproved, StatusCompleted, StatusRejected} {
		next, ok := table.Next(status, ActionResetToPending)
		require.True(t, ok, "reset from %s", status)
		assert.Equal(t, StatusPending, next)
	}
}

func TestSourcesForIsSorted(t *testing.T) {
	table := PrintThenApprove()
	sources := table.SourcesFor(ActionResetToPending)
	require.NotEmpty(t, sources)
	for i := 1; i < len(sources); i++ {
		assert.Less(t, string(sources[i-1]), string(sources[i]))
	}
}

func TestRecordPatchIsEmpty(t *testing.T) {
	assert.True(t, RecordPatch{}.IsEmpty())
	name := "Sri Vajiraramaya"
	assert.False(t, RecordPatch{Name: &name}.IsEmpty())
}
