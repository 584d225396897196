package crossshard

import (
	"testing"

	"github.com/leet4tari/tari-dan/epoch"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/txpool"
	"github.com/stretchr/testify/require"
)

// alwaysOKVerifier stubs crypto.ThresholdVerifier so these tests exercise
// Ingest's control flow without real BLS signatures.
type alwaysOKVerifier struct{ ok bool }

func (v *alwaysOKVerifier) Verify(signBytes, aggregateSignature, bitmap []byte, committee [][]byte, signerPower []uint64, minVotingPower, totalVotingPower uint64) (bool, bool, error) {
	return v.ok, false, nil
}

func (v *alwaysOKVerifier) Aggregate(signatures [][]byte, bitmap []byte, committee [][]byte) ([]byte, error) {
	return []byte{1}, nil
}

func testCommittee() lib.Committee {
	return lib.Committee{
		ShardGroup: 1, PublicKeys: [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")},
		VotingPower: []uint64{1, 1, 1}, TotalVotingPower: 3, QuorumThreshold: 2,
	}
}

func testQC(header *lib.BlockHeader) *lib.QuorumCertificate {
	return &lib.QuorumCertificate{
		HeaderHash: (&lib.Block{Header: header}).Hash(), Height: header.Height, Epoch: header.Epoch,
		ShardGroup: header.ShardGroup, Signature: &lib.AggregateSignature{Signature: []byte{1}, Bitmap: []byte{3}},
	}
}

func newTestCoordinator(t *testing.T, verifierOK bool) (*Coordinator, *txpool.Pool) {
	t.Helper()
	oracle := epoch.NewStaticOracle(testCommittee(), []byte("v1"))
	pool := txpool.NewPool(lib.DefaultPoolConfig(), lib.NewNullLogger())
	return NewCoordinator(oracle, &alwaysOKVerifier{ok: verifierOK}, pool, lib.NewNullLogger()), pool
}

func TestIngestRejectsInvalidQC(t *testing.T) {
	c, _ := newTestCoordinator(t, false)
	header := &lib.BlockHeader{Height: 1, Epoch: 0, ShardGroup: 1}
	block := &lib.Block{Header: header}

	err := c.Ingest(block, testQC(header), nil)
	require.Error(t, err)
}

func TestIngestParksOnMissingTransaction(t *testing.T) {
	c, _ := newTestCoordinator(t, true)
	header := &lib.BlockHeader{Height: 1, Epoch: 0, ShardGroup: 1}
	block := &lib.Block{Header: header, Commands: []*lib.Command{
		{Kind: lib.CmdPrepare, Atom: &lib.TransactionAtom{TxID: "tx1", Decision: lib.DecisionAccept}},
	}}

	err := c.Ingest(block, testQC(header), nil)
	require.Error(t, err)

	// re-ingesting the exact same block while still parked must fail
	// distinctly (already parked), not silently re-park.
	err = c.Ingest(block, testQC(header), nil)
	require.Error(t, err)
}

func TestIngestAppliesEvidenceOnceTransactionKnown(t *testing.T) {
	c, pool := newTestCoordinator(t, true)
	require.NoError(t, pool.Insert("tx1", lib.DecisionAccept, 10, true, []uint64{2}))

	header := &lib.BlockHeader{Height: 1, Epoch: 0, ShardGroup: 1}
	block := &lib.Block{Header: header, Commands: []*lib.Command{
		{Kind: lib.CmdPrepare, Atom: &lib.TransactionAtom{TxID: "tx1", Decision: lib.DecisionAccept}},
	}}

	require.NoError(t, c.Ingest(block, testQC(header), nil))

	e, ok := pool.Get("tx1")
	require.True(t, ok)
	require.Equal(t, lib.StatusPrepared, e.Evidence.ByGroup[1].Status)
}

func TestIngestRejectsPledgeViolation(t *testing.T) {
	c, pool := newTestCoordinator(t, true)
	require.NoError(t, pool.Insert("tx1", lib.DecisionAccept, 10, true, []uint64{2}))
	require.NoError(t, pool.Insert("tx2", lib.DecisionAccept, 10, true, []uint64{2}))

	header := &lib.BlockHeader{Height: 1, Epoch: 0, ShardGroup: 1}
	block := &lib.Block{Header: header, Commands: []*lib.Command{
		{Kind: lib.CmdPrepare, Atom: &lib.TransactionAtom{TxID: "tx1", Decision: lib.DecisionAccept}},
	}}
	pledge := lib.SubstatePledge{TxID: "tx1", SubstateID: "s1", Version: 1, LockType: lib.LockWrite, ShardGroup: 1}
	require.NoError(t, c.Ingest(block, testQC(header), []lib.SubstatePledge{pledge}))

	header2 := &lib.BlockHeader{Height: 2, Epoch: 0, ShardGroup: 1}
	block2 := &lib.Block{Header: header2, Commands: []*lib.Command{
		{Kind: lib.CmdPrepare, Atom: &lib.TransactionAtom{TxID: "tx2", Decision: lib.DecisionAccept}},
	}}
	conflicting := lib.SubstatePledge{TxID: "tx2", SubstateID: "s1", Version: 1, LockType: lib.LockWrite, ShardGroup: 1}

	err := c.Ingest(block2, testQC(header2), []lib.SubstatePledge{conflicting})
	require.Error(t, err)
}

func TestOnTransactionArrivedDrainsParkedBlock(t *testing.T) {
	c, pool := newTestCoordinator(t, true)
	header := &lib.BlockHeader{Height: 1, Epoch: 0, ShardGroup: 1}
	block := &lib.Block{Header: header, Commands: []*lib.Command{
		{Kind: lib.CmdPrepare, Atom: &lib.TransactionAtom{TxID: "tx1", Decision: lib.DecisionAccept}},
	}}
	require.Error(t, c.Ingest(block, testQC(header), nil))

	require.NoError(t, pool.Insert("tx1", lib.DecisionAccept, 10, true, []uint64{2}))
	errs := c.OnTransactionArrived("tx1")
	require.Empty(t, errs)

	e, ok := pool.Get("tx1")
	require.True(t, ok)
	require.Equal(t, lib.StatusPrepared, e.Evidence.ByGroup[1].Status)
}
