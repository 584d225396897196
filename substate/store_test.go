package substate

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/crypto"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), crypto.DefaultHasher, lib.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreApplyBlockDiffUpThenGet(t *testing.T) {
	s := newTestStore(t)
	tree := NewTree(crypto.DefaultHasher)
	diff := Diff{Ups: []*lib.Substate{{SubstateID: "s1", Version: 1, StateHash: lib.HexBytes{1, 2, 3}}}}

	require.NoError(t, s.ApplyBlockDiff(0, diff, tree))

	got, err := s.Get("s1", 1)
	require.NoError(t, err)
	require.True(t, got.IsLive())

	live, ok, err := s.LiveVersion("s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), live.Version)
}

func TestStoreApplyBlockDiffRejectsDoubleLive(t *testing.T) {
	s := newTestStore(t)
	tree := NewTree(crypto.DefaultHasher)
	diff := Diff{Ups: []*lib.Substate{{SubstateID: "s1", Version: 1}}}
	require.NoError(t, s.ApplyBlockDiff(0, diff, tree))

	err := s.ApplyBlockDiff(0, Diff{Ups: []*lib.Substate{{SubstateID: "s1", Version: 2}}}, tree)
	require.Error(t, err)
}

func TestStoreApplyBlockDiffDownDestroysAndRemovesFromTree(t *testing.T) {
	s := newTestStore(t)
	tree := NewTree(crypto.DefaultHasher)
	require.NoError(t, s.ApplyBlockDiff(0, Diff{Ups: []*lib.Substate{{SubstateID: "s1", Version: 1, StateHash: lib.HexBytes{9}}}}, tree))
	root := tree.Root()

	require.NoError(t, s.ApplyBlockDiff(0, Diff{Downs: []DownSpec{{SubstateID: "s1", Version: 1}}}, tree))

	_, ok, err := s.LiveVersion("s1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NotEqual(t, root, tree.Root())
}

func TestStoreApplyBlockDiffOrdersDownsBeforeUpsOfSameID(t *testing.T) {
	s := newTestStore(t)
	tree := NewTree(crypto.DefaultHasher)
	require.NoError(t, s.ApplyBlockDiff(0, Diff{Ups: []*lib.Substate{{SubstateID: "s1", Version: 1}}}, tree))

	// a single diff both destroys v1 and creates v2 of the same substate_id;
	// the down must apply before the up or the "at most one live version"
	// invariant would spuriously reject it.
	diff := Diff{
		Downs: []DownSpec{{SubstateID: "s1", Version: 1}},
		Ups:   []*lib.Substate{{SubstateID: "s1", Version: 2}},
	}
	require.NoError(t, s.ApplyBlockDiff(0, diff, tree))

	live, ok, err := s.LiveVersion("s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), live.Version)
}
