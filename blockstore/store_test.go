package blockstore

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func block(parent lib.HexBytes, height, epoch, shardGroup uint64) *lib.Block {
	return &lib.Block{Header: &lib.BlockHeader{
		ParentID: parent, Height: height, Epoch: epoch, ShardGroup: shardGroup,
		TimestampUnixMicro: height, // unique per height so hashes differ
	}}
}

func TestStoreInsertGetAndHeightIndex(t *testing.T) {
	s := newTestStore(t)
	b := block(nil, 1, 0, 0)
	id := b.Hash()
	require.NoError(t, s.Insert(b))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Header.Height)

	atHeight, err := s.AtHeight(0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, id.String(), atHeight.String())
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(lib.HexBytes("nope"))
	require.Error(t, err)
	require.False(t, s.Has(lib.HexBytes("nope")))
}

func TestStoreChildrenTracksParentEdges(t *testing.T) {
	s := newTestStore(t)
	root := block(nil, 1, 0, 0)
	rootID := root.Hash()
	require.NoError(t, s.Insert(root))

	childA := block(rootID, 2, 0, 0)
	childB := block(rootID, 2, 0, 0)
	childB.Header.BaseLayerBlockHeight = 1 // perturb hash so A != B
	require.NoError(t, s.Insert(childA))
	require.NoError(t, s.Insert(childB))

	children, err := s.Children(rootID)
	require.NoError(t, err)
	require.Len(t, children, 2)
}

func TestStoreJustifiedAndCommittedFlags(t *testing.T) {
	s := newTestStore(t)
	b := block(nil, 1, 0, 0)
	id := b.Hash()
	require.NoError(t, s.Insert(b))

	require.False(t, s.IsJustified(id))
	require.NoError(t, s.SetJustified(id))
	require.True(t, s.IsJustified(id))

	require.False(t, s.IsCommitted(id))
	require.NoError(t, s.SetCommitted(id))
	require.True(t, s.IsCommitted(id))
	require.Error(t, s.SetCommitted(id), "double commit must be rejected")
}

func TestStorePruneDeletesUncommittedSiblingsOnly(t *testing.T) {
	s := newTestStore(t)
	root := block(nil, 1, 0, 0)
	rootID := root.Hash()
	require.NoError(t, s.Insert(root))

	keep := block(rootID, 2, 0, 0)
	keepID := keep.Hash()
	sibling := block(rootID, 2, 0, 0)
	sibling.Header.BaseLayerBlockHeight = 1
	siblingID := sibling.Hash()
	require.NoError(t, s.Insert(keep))
	require.NoError(t, s.Insert(sibling))
	require.NoError(t, s.SetCommitted(keepID))

	pruned, err := s.Prune(rootID, keepID)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	require.Equal(t, siblingID.String(), pruned[0].String())
	require.False(t, s.Has(siblingID))
	require.True(t, s.Has(keepID))
}

func TestStoreEpochStatsCreditAndMissed(t *testing.T) {
	s := newTestStore(t)
	pub := lib.HexBytes("validator-1")

	require.NoError(t, s.CreditParticipation(1, pub))
	require.NoError(t, s.CreditParticipation(1, pub))
	stats, err := s.EpochStats(1, pub)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.ParticipationShares)

	for i := 0; i < 5; i++ {
		_, err := s.RecordMissedProposal(1, pub, 3)
		require.NoError(t, err)
	}
	stats, err = s.EpochStats(1, pub)
	require.NoError(t, err)
	require.Equal(t, uint64(5), stats.MissedProposals)
	require.Equal(t, uint64(3), stats.MissedProposalsCapped, "capped counter must not exceed cap")

	require.True(t, s.IsEvictionEligible(1, pub, 3))
	require.False(t, s.IsEvictionEligible(1, pub, 4))
}

func TestStoreEvictedAndEpochCheckpoint(t *testing.T) {
	s := newTestStore(t)
	pub := lib.HexBytes("validator-1")
	blockID := lib.HexBytes("block-x")

	require.False(t, s.IsEvicted(1, pub))
	require.NoError(t, s.RecordEvicted(1, pub, blockID))
	require.True(t, s.IsEvicted(1, pub))

	cp := EpochCheckpoint{Epoch: 1, CommitBlockID: blockID, PerShardRoots: map[uint64]lib.HexBytes{0: {1, 2}}}
	require.NoError(t, s.WriteEpochCheckpoint(cp))

	got, err := s.EpochCheckpoint(1)
	require.NoError(t, err)
	require.Equal(t, blockID.String(), got.CommitBlockID.String())
}
