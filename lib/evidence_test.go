package lib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

/* Merge commutativity and monotonicity, spec §4.2 "Evidence monotonicity". */

func TestEvidenceMergeMonotonic(t *testing.T) {
	e := NewEvidence()
	require.NoError(t, e.Merge(1, GroupEvidence{LockType: LockWrite, Status: StatusPrepared}))
	require.Equal(t, StatusPrepared, e.ByGroup[1].Status)

	require.NoError(t, e.Merge(1, GroupEvidence{LockType: LockWrite, Status: StatusAccepted}))
	require.Equal(t, StatusAccepted, e.ByGroup[1].Status)

	// a regression to Prepared after Accepted is a no-op, never shrinks the set
	require.NoError(t, e.Merge(1, GroupEvidence{LockType: LockWrite, Status: StatusPrepared}))
	require.Equal(t, StatusAccepted, e.ByGroup[1].Status)
}

func TestEvidenceMergeRejectsLockTypeChange(t *testing.T) {
	e := NewEvidence()
	require.NoError(t, e.Merge(1, GroupEvidence{LockType: LockRead, Status: StatusPrepared}))
	err := e.Merge(1, GroupEvidence{LockType: LockWrite, Status: StatusPrepared})
	require.Error(t, err)
}

func TestEvidenceMergeAbortIsTerminal(t *testing.T) {
	e := NewEvidence()
	require.NoError(t, e.Merge(1, GroupEvidence{LockType: LockWrite, Status: StatusAbort}))
	err := e.Merge(1, GroupEvidence{LockType: LockWrite, Status: StatusAccepted})
	require.Error(t, err)
	require.True(t, e.AnyAbort())
}

// TestEvidenceMergeCommutative applies the same set of updates across
// several groups in two different orders and checks the resulting map is
// identical either way.
func TestEvidenceMergeCommutative(t *testing.T) {
	updates := map[uint64][]GroupEvidence{
		1: {{LockType: LockWrite, Status: StatusPrepared}, {LockType: LockWrite, Status: StatusAccepted}},
		2: {{LockType: LockRead, Status: StatusPrepared}},
		3: {{LockType: LockOutput, Status: StatusAccepted}},
	}

	forward := NewEvidence()
	for _, g := range []uint64{1, 2, 3} {
		for _, u := range updates[g] {
			require.NoError(t, forward.Merge(g, u))
		}
	}

	backward := NewEvidence()
	for _, g := range []uint64{3, 2, 1} {
		for _, u := range updates[g] {
			require.NoError(t, backward.Merge(g, u))
		}
	}

	require.Equal(t, forward.ByGroup, backward.ByGroup)
}
