package consensus

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/stretchr/testify/require"
)

func TestAdvanceHighQCOnlyMovesForward(t *testing.T) {
	te := newTestEngine(t, true)
	_, id1 := te.chainBlock(t, nil, 1)
	qc1 := qcFor(id1, 1)
	require.NoError(t, te.advanceHighQC(qc1))
	require.True(t, qc1.Equals(te.safety.HighQC))

	// a QC for a lower height must not replace a higher HighQC.
	_, id0 := te.chainBlock(t, nil, 0)
	qc0 := &lib.QuorumCertificate{HeaderHash: id0, Height: 0, Epoch: 0, Signature: qc1.Signature}
	require.NoError(t, te.advanceHighQC(qc0))
	require.True(t, qc1.Equals(te.safety.HighQC))
}

func TestAdvanceLockLocksParentOfJustifiedBlock(t *testing.T) {
	te := newTestEngine(t, true)
	_, rootID := te.chainBlock(t, nil, 1)
	_, childID := te.chainBlock(t, rootID, 2)
	qc := qcFor(childID, 2)

	require.NoError(t, te.advanceLock(qc))
	require.NotNil(t, te.safety.LockedBlock)
	require.Equal(t, uint64(1), te.safety.LockedBlock.Height)
}

func TestAdvanceLockNeverMovesBackward(t *testing.T) {
	te := newTestEngine(t, true)
	_, rootID := te.chainBlock(t, nil, 3)
	_, childID := te.chainBlock(t, rootID, 4)
	qc := qcFor(childID, 4)
	require.NoError(t, te.advanceLock(qc))
	require.Equal(t, uint64(3), te.safety.LockedBlock.Height)

	_, lowerRootID := te.chainBlock(t, nil, 1)
	_, lowerChildID := te.chainBlock(t, lowerRootID, 2)
	lowerQC := qcFor(lowerChildID, 2)
	require.NoError(t, te.advanceLock(lowerQC))
	require.Equal(t, uint64(3), te.safety.LockedBlock.Height, "lock must not regress")
}

func TestTryCommitThreeChainRule(t *testing.T) {
	te := newTestEngine(t, true)
	_, block1 := te.chainBlock(t, nil, 1)
	_, block2 := te.chainBlock(t, block1, 2)
	_, block3 := te.chainBlock(t, block2, 3)

	qc := qcFor(block3, 3)
	require.NoError(t, te.tryCommit(qc))
	require.True(t, te.blocks.IsCommitted(block1))
	require.False(t, te.blocks.IsCommitted(block2))
	require.False(t, te.blocks.IsCommitted(block3))
	require.Len(t, te.ctrl.committed, 1)
}

func TestTryCommitSkipsWhenChainHasAGap(t *testing.T) {
	te := newTestEngine(t, true)
	_, block1 := te.chainBlock(t, nil, 1)
	_, block2 := te.chainBlock(t, block1, 2)
	// block3's claimed height skips 3 -> a dummy-free gap breaks "consecutive".
	_, block3 := te.chainBlock(t, block2, 5)

	qc := qcFor(block3, 5)
	require.NoError(t, te.tryCommit(qc))
	require.False(t, te.blocks.IsCommitted(block1))
}

func TestTryCommitIsIdempotent(t *testing.T) {
	te := newTestEngine(t, true)
	_, block1 := te.chainBlock(t, nil, 1)
	_, block2 := te.chainBlock(t, block1, 2)
	_, block3 := te.chainBlock(t, block2, 3)
	qc := qcFor(block3, 3)

	require.NoError(t, te.tryCommit(qc))
	require.NoError(t, te.tryCommit(qc))
	require.Len(t, te.ctrl.committed, 1, "re-observing the same QC must not double-commit")
}

func TestCommitBlockAppliesCommandsAndCreditsParticipation(t *testing.T) {
	te := newTestEngine(t, true)
	require.NoError(t, te.pool.Insert("tx1", lib.DecisionAccept, 10, false, nil))

	b := &lib.Block{Header: &lib.BlockHeader{Height: 1, Epoch: 0, ShardGroup: 0, ProposedBy: []byte("v1")},
		Commands: []*lib.Command{{Kind: lib.CmdLocalOnly, Atom: &lib.TransactionAtom{TxID: "tx1", Decision: lib.DecisionAccept}}},
	}
	id := b.Hash()
	require.NoError(t, te.blocks.Insert(b))

	require.NoError(t, te.commitBlock(b, id))
	require.True(t, te.blocks.IsCommitted(id))
	require.False(t, te.pool.Contains("tx1"), "LocalOnly command must evict on commit")

	stats, err := te.blocks.EpochStats(0, lib.HexBytes("v1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.ParticipationShares)
}
