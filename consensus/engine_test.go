package consensus

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/leet4tari/tari-dan/blockstore"
	"github.com/leet4tari/tari-dan/crossshard"
	"github.com/leet4tari/tari-dan/epoch"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/crypto"
	"github.com/leet4tari/tari-dan/substate"
	"github.com/leet4tari/tari-dan/txpool"
	"github.com/stretchr/testify/require"
)

// alwaysOKVerifier stubs crypto.ThresholdVerifier so tests exercise QC
// admission without real BLS signatures.
type alwaysOKVerifier struct{ ok bool }

func (v *alwaysOKVerifier) Verify(signBytes, aggregateSignature, bitmap []byte, committee [][]byte, signerPower []uint64, minVotingPower, totalVotingPower uint64) (bool, bool, error) {
	return v.ok, false, nil
}

func (v *alwaysOKVerifier) Aggregate(signatures [][]byte, bitmap []byte, committee [][]byte) ([]byte, error) {
	return []byte{1}, nil
}

// fakeController stands in for everything outside the consensus task's own
// bookkeeping: execution, persistence of committed effects, and gossip.
type fakeController struct {
	oracle      epoch.Oracle
	pub         []byte
	executed    []lib.HexBytes
	committed   []lib.HexBytes
	sentVotes   []*lib.VoteMessage
	sentNewView []*lib.NewViewMessage
}

func (c *fakeController) Oracle() epoch.Oracle { return c.oracle }
func (c *fakeController) ExecuteBlock(block *lib.Block) (substate.Diff, lib.ErrorI) {
	c.executed = append(c.executed, block.Hash())
	return substate.Diff{}, nil
}
func (c *fakeController) CommitBlock(block *lib.Block) lib.ErrorI {
	c.committed = append(c.committed, block.Hash())
	return nil
}
func (c *fakeController) SendProposal(msg *lib.ProposalMessage) {}
func (c *fakeController) SendVote(msg *lib.VoteMessage)         { c.sentVotes = append(c.sentVotes, msg) }
func (c *fakeController) SendNewView(msg *lib.NewViewMessage)   { c.sentNewView = append(c.sentNewView, msg) }
func (c *fakeController) RequestMissingTransactions(req *lib.MissingTransactionsRequest) {}
func (c *fakeController) PublicKey() []byte { return c.pub }
func (c *fakeController) Sign(msg []byte) (lib.HexBytes, lib.ErrorI) { return lib.HexBytes{1, 2, 3}, nil }

func testCommittee() lib.Committee {
	return lib.Committee{
		ShardGroup: 0, PublicKeys: [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")},
		VotingPower: []uint64{1, 1, 1}, TotalVotingPower: 3, QuorumThreshold: 2,
	}
}

type testEngine struct {
	*Engine
	blocks *blockstore.Store
	ctrl   *fakeController
	pool   *txpool.Pool
}

func newTestEngine(t *testing.T, verifierOK bool) *testEngine {
	t.Helper()
	blocks, err := blockstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { blocks.Close() })

	db, berr := badger.Open(badger.DefaultOptions(t.TempDir()))
	require.NoError(t, berr)
	t.Cleanup(func() { db.Close() })
	singletons := NewSingletonStore(db)

	oracle := epoch.NewStaticOracle(testCommittee(), []byte("v1"))
	pool := txpool.NewPool(lib.DefaultPoolConfig(), lib.NewNullLogger())
	cross := crossshard.NewCoordinator(oracle, &alwaysOKVerifier{ok: verifierOK}, pool, lib.NewNullLogger())
	ctrl := &fakeController{oracle: oracle, pub: []byte("v1")}

	sub, serr := substate.Open(t.TempDir(), crypto.DefaultHasher, lib.NewNullLogger())
	require.NoError(t, serr)
	t.Cleanup(func() { sub.Close() })
	tree := substate.NewTree(crypto.DefaultHasher)

	e := NewEngine(lib.DefaultConsensusConfig(), lib.NewNullLogger(), crypto.DefaultHasher,
		&alwaysOKVerifier{ok: verifierOK}, ctrl, blocks, pool, cross, singletons, sub, tree, 0)
	return &testEngine{Engine: e, blocks: blocks, ctrl: ctrl, pool: pool}
}

// chainBlock inserts a block at height with the given parent into the
// engine's block store and returns (block, id).
func (te *testEngine) chainBlock(t *testing.T, parent lib.HexBytes, height uint64) (*lib.Block, lib.HexBytes) {
	t.Helper()
	b := &lib.Block{Header: &lib.BlockHeader{
		ParentID: parent, Height: height, Epoch: 0, ShardGroup: 0,
		ProposedBy: []byte("v1"), TimestampUnixMicro: height,
	}}
	id := b.Hash()
	require.NoError(t, te.blocks.Insert(b))
	return b, id
}

func qcFor(id lib.HexBytes, height uint64) *lib.QuorumCertificate {
	return &lib.QuorumCertificate{
		HeaderHash: id, Height: height, Epoch: 0, ShardGroup: 0, Phase: lib.Precommit, Decision: lib.DecisionAccept,
		Signature: &lib.AggregateSignature{Signature: []byte{1}, Bitmap: []byte{3}},
	}
}
