package substate

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/crypto"
	"github.com/stretchr/testify/require"
)

func TestTreeRootDeterministicRegardlessOfInsertOrder(t *testing.T) {
	a := NewTree(crypto.DefaultHasher)
	a.Upsert("s1", lib.HexBytes{1})
	a.Upsert("s2", lib.HexBytes{2})

	b := NewTree(crypto.DefaultHasher)
	b.Upsert("s2", lib.HexBytes{2})
	b.Upsert("s1", lib.HexBytes{1})

	require.Equal(t, a.Root(), b.Root())
}

func TestTreeRootChangesOnMutation(t *testing.T) {
	tree := NewTree(crypto.DefaultHasher)
	empty := tree.Root()
	tree.Upsert("s1", lib.HexBytes{1})
	withLeaf := tree.Root()
	require.NotEqual(t, empty, withLeaf)
	tree.Remove("s1")
	require.Equal(t, empty, tree.Root())
}

func TestPendingDiffsStageTakePurge(t *testing.T) {
	pd := NewPendingDiffs()
	blockID := lib.HexBytes("block-1")
	diff := Diff{Ups: []*lib.Substate{{SubstateID: "s1", Version: 1}}}
	pd.Stage(blockID, diff)

	got, ok := pd.Take(blockID)
	require.True(t, ok)
	require.Len(t, got.Ups, 1)

	_, ok = pd.Take(blockID)
	require.False(t, ok, "Take removes the entry")

	pd.Stage(blockID, diff)
	pd.Purge([]lib.HexBytes{blockID})
	_, ok = pd.Take(blockID)
	require.False(t, ok)
}
