package consensus

import (
	"testing"
	"time"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/stretchr/testify/require"
)

// admissibleProposal builds a block+justify pair that passes every rule of
// admitProposal against te's fixture committee (leader = PublicKeys[height%3]).
func admissibleProposal(t *testing.T, te *testEngine, parentID lib.HexBytes, parentTS uint64, height uint64) *lib.Block {
	t.Helper()
	committee := testCommittee()
	justify := &lib.QuorumCertificate{
		HeaderHash: parentID, Height: height - 1, Epoch: 0, ShardGroup: 0,
		Signature: &lib.AggregateSignature{Signature: []byte{1}, Bitmap: []byte{3}},
	}
	leader := committee.PublicKeys[height%uint64(len(committee.PublicKeys))]
	return &lib.Block{
		Header: &lib.BlockHeader{
			ParentID: parentID, Height: height, Epoch: 0, ShardGroup: 0,
			ProposedBy: leader, TimestampUnixMicro: parentTS + 1,
		},
		Justify: justify,
	}
}

func TestAdmitProposalAcceptsWellFormedBlock(t *testing.T) {
	te := newTestEngine(t, true)
	_, parentID := te.chainBlock(t, nil, 0)
	b := admissibleProposal(t, te, parentID, 0, 1)
	require.NoError(t, te.admitProposal(b))
}

func TestAdmitProposalRejectsWrongParent(t *testing.T) {
	te := newTestEngine(t, true)
	_, parentID := te.chainBlock(t, nil, 0)
	b := admissibleProposal(t, te, parentID, 0, 1)
	b.Header.ParentID = lib.HexBytes("some-other-block")
	require.Error(t, te.admitProposal(b))
}

func TestAdmitProposalRejectsWrongHeight(t *testing.T) {
	te := newTestEngine(t, true)
	_, parentID := te.chainBlock(t, nil, 0)
	b := admissibleProposal(t, te, parentID, 0, 1)
	b.Header.Height = 7
	require.Error(t, te.admitProposal(b))
}

func TestAdmitProposalRejectsUnexpectedLeader(t *testing.T) {
	te := newTestEngine(t, true)
	_, parentID := te.chainBlock(t, nil, 0)
	b := admissibleProposal(t, te, parentID, 0, 1)
	b.Header.ProposedBy = lib.HexBytes("not-the-leader")
	require.Error(t, te.admitProposal(b))
}

func TestAdmitProposalRejectsEquivocation(t *testing.T) {
	te := newTestEngine(t, true)
	_, parentID := te.chainBlock(t, nil, 0)
	first := admissibleProposal(t, te, parentID, 0, 1)
	require.NoError(t, te.admitProposal(first))
	require.NoError(t, te.blocks.Insert(first))

	second := admissibleProposal(t, te, parentID, 0, 1)
	second.Header.TimestampUnixMicro = first.Header.TimestampUnixMicro + 100 // distinct hash, same (epoch,height)
	require.Error(t, te.admitProposal(second))
}

func TestAdmitProposalRejectsStaleTimestamp(t *testing.T) {
	te := newTestEngine(t, true)
	parent := &lib.Block{Header: &lib.BlockHeader{Height: 0, Epoch: 0, ShardGroup: 0, TimestampUnixMicro: 1000}}
	parentID := parent.Hash()
	require.NoError(t, te.blocks.Insert(parent))

	b := admissibleProposal(t, te, parentID, 1000, 1)
	b.Header.TimestampUnixMicro = 500
	require.Error(t, te.admitProposal(b))
}

func TestAdmitProposalRejectsInvalidJustify(t *testing.T) {
	te := newTestEngine(t, false) // verifier always reports invalid
	_, parentID := te.chainBlock(t, nil, 0)
	b := admissibleProposal(t, te, parentID, 0, 1)
	require.Error(t, te.admitProposal(b))
}

func TestProposeNextSkipsWhenNotOurTurn(t *testing.T) {
	te := newTestEngine(t, true)
	// default view is height 0, so nextHeight=1 and the leader is
	// PublicKeys[1%3]=v2, not this node's own public key (v1).
	block, err := te.ProposeNext(time.Now())
	require.NoError(t, err)
	require.Nil(t, block)
}

func TestProposeNextProposesOnOurTurn(t *testing.T) {
	te := newTestEngine(t, true)
	te.view.Height = 2 // nextHeight=3, 3%3=0 -> leader PublicKeys[0]=v1, this node.

	block, err := te.ProposeNext(time.Now())
	require.NoError(t, err)
	require.NotNil(t, block)
	require.Equal(t, uint64(3), block.Header.Height)
	require.Len(t, te.ctrl.sentVotes, 0)
}

func TestProposeNextRefusesDoublePropose(t *testing.T) {
	te := newTestEngine(t, true)
	te.view.Height = 2

	first, err := te.ProposeNext(time.Now())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := te.ProposeNext(time.Now())
	require.Error(t, err)
	require.Nil(t, second)
}
