package consensus

import (
	"github.com/leet4tari/tari-dan/epoch"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/substate"
)

/*
Controller is the boundary the Engine calls out through for everything
that is not its own safety-state bookkeeping: execution, persistence and
gossip, mirroring the teacher's bft.Controller (bft/consensus.go) which
the BFT type embeds so it never touches a socket or the FSM directly.
*/
type Controller interface {
	// Oracle returns the read-only epoch/committee boundary, §4.6.
	Oracle() epoch.Oracle

	// ExecuteBlock asks the execution collaborator (out of scope, §1) to
	// produce the substate write set for a block's accept commands, which
	// the engine then applies via substate.Store.ApplyBlockDiff on commit,
	// §4.3.
	ExecuteBlock(block *lib.Block) (substate.Diff, lib.ErrorI)

	// CommitBlock notifies the collaborator of a block that just passed the
	// three-chain commit rule, §4.1. The engine has already applied the
	// block's substate diff and pool evictions before calling it.
	CommitBlock(block *lib.Block) lib.ErrorI

	// SendProposal gossips a Proposal to the local committee.
	SendProposal(msg *lib.ProposalMessage)
	// SendVote gossips a VoteMessage to the current leader.
	SendVote(msg *lib.VoteMessage)
	// SendNewView gossips a NewViewMessage to the next leader.
	SendNewView(msg *lib.NewViewMessage)

	// RequestMissingTransactions asks peers for transactions referenced by
	// a proposal but not yet known locally, §4.1 "Failure semantics".
	RequestMissingTransactions(req *lib.MissingTransactionsRequest)

	// PublicKey returns this node's consensus public key.
	PublicKey() []byte
	// Sign signs msg with this node's consensus private key.
	Sign(msg []byte) (lib.HexBytes, lib.ErrorI)
}
