package consensus

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/stretchr/testify/require"
)

func TestCanVoteAllowsFirstBlockAtAnyHeight(t *testing.T) {
	te := newTestEngine(t, true)
	b, _ := te.chainBlock(t, nil, 1)
	require.True(t, te.canVote(b))
}

func TestCanVoteRejectsNonIncreasingHeight(t *testing.T) {
	te := newTestEngine(t, true)
	te.safety.LastVoted = &lib.View{Height: 5}
	b, _ := te.chainBlock(t, nil, 5)
	require.False(t, te.canVote(b))
}

func TestCanVoteAllowsDirectChildOfLockedBlock(t *testing.T) {
	te := newTestEngine(t, true)
	_, rootID := te.chainBlock(t, nil, 1)
	root, err := te.blocks.Get(rootID)
	require.NoError(t, err)
	te.safety.LockedBlock = root.Header

	child, _ := te.chainBlock(t, rootID, 2)
	require.True(t, te.canVote(child))
}

func TestCanVoteRejectsForkThatDoesNotExtendLockAndHasNoHigherJustify(t *testing.T) {
	te := newTestEngine(t, true)
	_, lockedID := te.chainBlock(t, nil, 10)
	locked, err := te.blocks.Get(lockedID)
	require.NoError(t, err)
	te.safety.LockedBlock = locked.Header

	// a sibling fork rooted elsewhere, with no justify at all.
	forkRoot, _ := te.chainBlock(t, nil, 1)
	require.False(t, te.canVote(forkRoot))
}

func TestCanVoteAllowsForkWithHigherJustifyThanLock(t *testing.T) {
	te := newTestEngine(t, true)
	_, lockedID := te.chainBlock(t, nil, 1)
	locked, err := te.blocks.Get(lockedID)
	require.NoError(t, err)
	te.safety.LockedBlock = locked.Header

	forkRoot, forkID := te.chainBlock(t, nil, 2)
	forkRoot.Justify = qcFor(forkID, 5) // justify height (5) > lock height (1)
	require.True(t, te.canVote(forkRoot))
}

func TestCastVoteRejectsSecondVoteForSameBlock(t *testing.T) {
	te := newTestEngine(t, true)
	b, _ := te.chainBlock(t, nil, 1)

	require.NoError(t, te.castVote(b, lib.ProposeVote))
	require.Len(t, te.ctrl.sentVotes, 1)

	err := te.castVote(b, lib.ProposeVote)
	require.Error(t, err)
}

func TestOnVoteFormsQCAtQuorumAndAdvancesSafety(t *testing.T) {
	te := newTestEngine(t, true)
	_, rootID := te.chainBlock(t, nil, 1)
	_, childID := te.chainBlock(t, rootID, 2)

	view := lib.View{Height: 2, Epoch: 0, ShardGroup: 0, Phase: lib.ProposeVote}
	vote1 := &lib.VoteMessage{View: view, HeaderHash: childID, Decision: lib.DecisionAccept}
	vote1.SignerPublicKey = lib.HexBytes("v1")
	vote2 := &lib.VoteMessage{View: view, HeaderHash: childID, Decision: lib.DecisionAccept}
	vote2.SignerPublicKey = lib.HexBytes("v2")

	require.NoError(t, te.OnVote(vote1))
	require.Nil(t, te.safety.HighQC, "one vote out of three must not yet reach quorum (threshold 2)")

	require.NoError(t, te.OnVote(vote2))
	require.NotNil(t, te.safety.HighQC)
	require.Equal(t, childID.String(), te.safety.HighQC.HeaderHash.String())
	require.NotNil(t, te.safety.LockedBlock)
	require.Equal(t, uint64(1), te.safety.LockedBlock.Height)
}

func TestOnVoteRejectsUnknownSigner(t *testing.T) {
	te := newTestEngine(t, true)
	_, childID := te.chainBlock(t, nil, 1)
	vote := &lib.VoteMessage{View: lib.View{ShardGroup: 0}, HeaderHash: childID, Decision: lib.DecisionAccept}
	vote.SignerPublicKey = lib.HexBytes("not-a-committee-member")

	err := te.OnVote(vote)
	require.Error(t, err)
}
