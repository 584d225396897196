package consensus

import (
	"time"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/txpool"
)

/*
Proposal admission and the leader loop, spec §4.1.
*/

// admitProposal checks rules (a)-(f) of spec §4.1 "Proposal admission".
// Command-level admissibility (f) is delegated to txpool via the caller,
// since it requires pool state this function doesn't hold.
func (e *Engine) admitProposal(b *lib.Block) lib.ErrorI {
	if b == nil || b.Header == nil {
		return lib.ErrNilBlock()
	}
	if b.Justify == nil {
		return lib.ErrNilQC()
	}
	committee, err := e.ctrl.Oracle().Committee(b.Header.Epoch, b.Header.ShardGroup)
	if err != nil {
		return err
	}
	// (a) justify is a valid QC signed by the committee of (epoch, shard_group)
	if _, cerr := b.Justify.Check(e.verifier, committee); cerr != nil {
		return lib.ErrInvalidJustifyQC()
	}
	// (b) parent = justify.block_id
	if !bytesEqual(b.Header.ParentID, b.Justify.HeaderHash) && !b.Header.IsDummy {
		return lib.ErrWrongParent()
	}
	// (c) height = justify.height + 1, unless bridging a gap via dummy blocks (§4.1.3)
	if b.Header.Height != b.Justify.Height+1 && !b.Header.IsDummy {
		return lib.ErrWrongHeight()
	}
	// (d) proposed_by is the expected leader for (epoch, shard_group, height)
	expected, lerr := e.ctrl.Oracle().ExpectedLeader(b.Header.Epoch, b.Header.ShardGroup, b.Header.Height)
	if lerr != nil {
		return lerr
	}
	if !bytesEqual(b.Header.ProposedBy, expected) {
		return lib.ErrUnexpectedLeader(b.Header.ProposedBy)
	}
	if e.blocks.IsEvicted(b.Header.Epoch, b.Header.ProposedBy) {
		return lib.ErrEvicted(b.Header.ProposedBy)
	}
	// a block for an already-ended (epoch, shard_group) is never admissible,
	// §4.5 "a later proposal for the previous epoch is rejected".
	if cp, cerr := e.blocks.EpochCheckpoint(b.Header.Epoch); cerr == nil && cp != nil {
		if _, ended := cp.PerShardRoots[b.Header.ShardGroup]; ended {
			return lib.ErrEpochEnded(b.Header.Epoch)
		}
	}
	// equivocation: a leader may not propose two distinct blocks at the same (epoch, height)
	if existing, eerr := e.blocks.AtHeight(b.Header.Epoch, b.Header.ShardGroup, b.Header.Height); eerr == nil && existing != nil {
		if id := b.Hash(); !bytesEqual(existing, id) {
			return lib.ErrEquivocation(b.Header.Height, b.Header.ProposedBy)
		}
	}
	// (e) timestamp/base-layer anchor monotonicity: the new block's timestamp must not
	// precede its parent's; staleness bounds against the collaborator's clock are a
	// deployment policy left to the Controller, not hardcoded here.
	if parent, perr := e.blocks.Get(b.Header.ParentID); perr == nil && parent != nil {
		if b.Header.TimestampUnixMicro < parent.Header.TimestampUnixMicro {
			return lib.ErrStaleTimestamp()
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OnProposal handles an inbound Proposal message: admits it, applies the
// locking rule against its justify QC, and votes if safe to do so. A
// proposal that references unknown transactions is not parked: OnProposal
// requests the missing transactions and returns ErrUnknownTransaction, and
// the proposal is not kept for a later retry.
func (e *Engine) OnProposal(msg *lib.ProposalMessage) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := msg.Block
	if err := e.admitProposal(b); err != nil {
		e.log.Warnf("discarding inadmissible proposal: %s", err.Error())
		return err
	}

	if missing := e.missingTransactions(b); len(missing) > 0 {
		e.ctrl.RequestMissingTransactions(&lib.MissingTransactionsRequest{BlockID: b.Hash(), TxIDs: missing})
		return lib.ErrUnknownTransaction(missing[0])
	}

	for _, cmd := range b.Commands {
		if cmd.TxID() != "" && !e.commandAdmissible(cmd) {
			return lib.ErrCommandNotAdmissible(cmd.Kind.String())
		}
	}

	// execute speculatively on admission and stage the resulting diff so
	// commitBlock can Take it rather than re-executing, §4.3; a block that
	// never reaches commit (a pruned fork) has its staged diff discarded by
	// Purge instead, the I4 invariant of substate/tree.go.
	diff, eerr := e.ctrl.ExecuteBlock(b)
	if eerr != nil {
		return eerr
	}
	e.pendingDiffs.Stage(b.Hash(), diff)

	if err := e.blocks.Insert(b); err != nil {
		return err
	}
	e.blocks.SetJustified(b.Justify.HeaderHash)
	if err := e.onQCLocked(b.Justify); err != nil {
		return err
	}
	// the proposal itself cancels the wait for the current view regardless
	// of its justify-QC's height, spec's "Cancellation" note.
	e.advanceView(b.Header.Height, b.Header.Epoch, b.Header.ShardGroup, time.Now())

	if e.canVote(b) {
		return e.castVote(b, lib.ProposeVote)
	}
	e.log.Infof("refusing to vote for %x: safety predicate failed", b.Hash())
	return nil
}

func (e *Engine) missingTransactions(b *lib.Block) []string {
	var missing []string
	for _, cmd := range b.Commands {
		txID := cmd.TxID()
		if txID == "" {
			continue
		}
		if !e.pool.Contains(txID) {
			missing = append(missing, txID)
		}
	}
	return missing
}

// commandAdmissible is the per-command half of admission rule (f), called
// only for transactional commands: a command is admissible if its
// transaction has a pool entry. Whether the entry's stage allows the
// transition the command implies is not checked here, nor anywhere else.
func (e *Engine) commandAdmissible(cmd *lib.Command) bool {
	entry, ok := e.pool.Get(cmd.TxID())
	if !ok {
		return false
	}
	_ = entry
	return true // at commit, txpool.Pool.ApplyCommand leaves the stage unchanged for a transition it does not recognize
}

// ProposeNext runs the leader loop of spec §4.1 "Leader loop" when this
// node is the expected leader for the current view.
func (e *Engine) ProposeNext(now time.Time) (*lib.Block, lib.ErrorI) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nextHeight := e.view.Height + 1
	if e.safety.HighQC != nil && nextHeight < e.safety.HighQC.Height+1 {
		nextHeight = e.safety.HighQC.Height + 1
	}

	leader, err := e.ctrl.Oracle().ExpectedLeader(e.view.Epoch, e.shardGroup, nextHeight)
	if err != nil {
		return nil, err
	}
	if !bytesEqual(leader, e.ctrl.PublicKey()) {
		return nil, nil // not our turn
	}
	if e.safety.LastProposed != nil && e.safety.LastProposed.Height == nextHeight && e.safety.LastProposed.Epoch == e.view.Epoch {
		return nil, lib.ErrEquivocation(nextHeight, leader) // already proposed this height, refuse to double-propose
	}

	ready := e.pool.ReadySet()
	cmds := buildCommands(ready, e.cfg.MaxBlockCommands, e.cfg.MaxBlockLeaderFee)
	cmds = append(cmds, e.evictionCommands(e.view.Epoch, e.shardGroup)...)
	lib.SortCommands(cmds)

	parentID := e.safety.LeafBlockID
	isDummy := false
	if e.safety.HighQC != nil && nextHeight > e.safety.HighQC.Height+1 {
		// bridge the height gap with a dummy block, §4.1 "Dummy blocks"
		isDummy = true
		cmds = nil
	}

	header := &lib.BlockHeader{
		ParentID:           parentID,
		Height:             nextHeight,
		Epoch:              e.view.Epoch,
		ShardGroup:         e.shardGroup,
		ProposedBy:         lib.HexBytes(leader),
		TimestampUnixMicro: uint64(now.UnixMicro()),
		IsDummy:            isDummy,
	}
	block := &lib.Block{Header: header, Justify: e.safety.HighQC, Commands: cmds}
	header.CommandMerkleRoot = block.CommandMerkleRoot()

	sig, serr := e.ctrl.Sign(block.Hash())
	if serr != nil {
		return nil, serr
	}
	e.safety.LastProposed = &lib.View{Height: nextHeight, Epoch: e.view.Epoch, ShardGroup: e.shardGroup, Phase: lib.Propose}
	if err := e.singletons.AppendLastProposed(e.view.Epoch, nextHeight, e.safety.LastProposed); err != nil {
		return nil, err
	}

	proposal := &lib.ProposalMessage{Block: block}
	proposal.Signature = sig
	proposal.SignerPublicKey = lib.HexBytes(e.ctrl.PublicKey())
	e.ctrl.SendProposal(proposal)
	return block, nil
}

// evictionCommands injects one CmdEvictNode per committee member that has
// crossed missed_proposals_capped's eviction threshold and has not already
// been evicted this epoch, spec §4.4 "missed_proposals_capped reaching the
// threshold makes EvictNode(public_key) eligible for inclusion".
func (e *Engine) evictionCommands(epoch, shardGroup uint64) []*lib.Command {
	committee, err := e.ctrl.Oracle().Committee(epoch, shardGroup)
	if err != nil {
		return nil
	}
	var out []*lib.Command
	for _, pub := range committee.PublicKeys {
		if e.blocks.IsEvicted(epoch, pub) {
			continue
		}
		if e.blocks.IsEvictionEligible(epoch, pub, e.cfg.EvictionThreshold) {
			out = append(out, &lib.Command{Kind: lib.CmdEvictNode, EvictPublicKey: pub})
		}
	}
	return out
}

// buildCommands selects ready entries up to the per-block caps of §4.2/§5,
// converting each into the Command its current stage implies. It enforces
// only the resource caps; lock conflicts and per-substate exclusivity are
// not resolved here or at proposal validation.
func buildCommands(ready []*txpool.Entry, maxCmds int, maxFee uint64) []*lib.Command {
	var out []*lib.Command
	var feeSum uint64
	for _, e := range ready {
		if len(out) >= maxCmds {
			break
		}
		fee := e.LeaderFee
		if feeSum+fee > maxFee {
			continue
		}
		kind := commandKindForStage(e)
		if kind < 0 {
			continue
		}
		feeSum += fee
		decision := e.OriginalDecision
		if e.LocalDecision != nil {
			decision = *e.LocalDecision
		}
		out = append(out, &lib.Command{
			Kind: kind,
			Atom: &lib.TransactionAtom{
				TxID: e.TxID, Decision: decision, Evidence: e.Evidence,
				Fee: e.TransactionFee, LeaderFee: e.LeaderFee,
			},
		})
	}
	return out
}

// commandKindForStage maps a ready pool entry's current stage to the
// command kind that advances it, the inverse of txpool.Transition, §4.2.
func commandKindForStage(e *txpool.Entry) lib.CommandKind {
	switch e.Stage {
	case txpool.StageNew:
		if e.IsGlobal {
			return lib.CmdPrepare
		}
		return lib.CmdLocalOnly
	case txpool.StagePrepared:
		return lib.CmdLocalPrepare
	case txpool.StageLocalPrepared:
		if e.Evidence.HasStatusEverywhere(e.ForeignGroups, lib.StatusPrepared) {
			return lib.CmdAllPrepare
		}
		return lib.CmdSomePrepare
	case txpool.StageAllPrepared, txpool.StageSomePrepared:
		return lib.CmdLocalAccept
	case txpool.StageLocalAccepted:
		if e.Evidence.HasStatusEverywhere(e.ForeignGroups, lib.StatusAccepted) {
			return lib.CmdAllAccept
		}
		return lib.CmdSomeAccept
	default:
		return -1
	}
}
