package consensus

import (
	"github.com/leet4tari/tari-dan/blockstore"
	"github.com/leet4tari/tari-dan/lib"
)

/*
HighQC update, the one-chain locking rule and the three-chain commit rule
of spec §4.1, collapsed from the teacher's longer sortition pipeline
(bft/bft.go NewHeight/CommitTree) to the spec's plain chained-HotStuff
rule: lock one block back, commit three blocks back once a consecutive
justify chain of that length exists.
*/

// advanceHighQC replaces safety.HighQC "on learning any QC with higher
// (epoch, height)", spec §4.1 "HighQC update", and persists the new row.
func (e *Engine) advanceHighQC(qc *lib.QuorumCertificate) lib.ErrorI {
	if qc == nil {
		return nil
	}
	if e.safety.HighQC != nil && !higherView(qc, e.safety.HighQC) {
		return nil
	}
	e.safety.HighQC = qc
	e.safety.LeafBlockID = qc.HeaderHash
	return e.singletons.AppendHighQC(qc.Epoch, qc.Height, qc)
}

func higherView(a, b *lib.QuorumCertificate) bool {
	if a.Epoch != b.Epoch {
		return a.Epoch > b.Epoch
	}
	return a.Height > b.Height
}

// advanceLock implements the one-chain locking rule: learning a QC for
// block X locks X's parent, the block one step back in the chain, unless
// it is already behind the current lock.
func (e *Engine) advanceLock(qc *lib.QuorumCertificate) lib.ErrorI {
	if qc == nil {
		return nil
	}
	x, err := e.blocks.Get(qc.HeaderHash)
	if err != nil {
		return nil // X not yet known locally; nothing to lock on
	}
	if x.Header.ParentID == nil {
		return nil
	}
	y, err := e.blocks.Get(x.Header.ParentID)
	if err != nil {
		return nil
	}
	if e.safety.LockedBlock != nil && y.Header.Height <= e.safety.LockedBlock.Height {
		return nil
	}
	e.safety.LockedBlock = y.Header
	return e.singletons.AppendLockedBlock(y.Header.Epoch, y.Header.Height, y.Header)
}

// tryCommit implements the three-chain commit rule: given a QC for block
// X, with parent Y and grandparent Z, if the chain X<-Y<-Z is consecutive
// (each a direct child of the next, each height one less than its child)
// then Z commits. Applying a commit triggers the block's substate diff
// and evicts its transactions from the pool, spec §4.3/§4.2.
func (e *Engine) tryCommit(qc *lib.QuorumCertificate) lib.ErrorI {
	if qc == nil {
		return nil
	}
	x, err := e.blocks.Get(qc.HeaderHash)
	if err != nil || x.Header.ParentID == nil {
		return nil
	}
	y, err := e.blocks.Get(x.Header.ParentID)
	if err != nil || y.Header.ParentID == nil {
		return nil
	}
	if y.Header.Height+1 != x.Header.Height {
		return nil
	}
	z, err := e.blocks.Get(y.Header.ParentID)
	if err != nil {
		return nil
	}
	if z.Header.Height+1 != y.Header.Height {
		return nil
	}
	if e.blocks.IsCommitted(qc.HeaderHash) {
		return nil
	}
	zID := z.Hash()
	if e.blocks.IsCommitted(zID) {
		return nil
	}
	return e.commitBlock(z, zID)
}

// commitBlock applies the irreversible effects of committing a block:
// substate diff application (the execution collaborator's Diff, applied to
// the substate.Store and state tree under one Pebble batch), maintenance
// command handling, pool eviction, epoch-stat credit, and the committed
// flag itself, in that order so a crash mid sequence never marks a block
// committed without its effects applied. Spec §4.3/§4.2/§4.4/§4.5.
func (e *Engine) commitBlock(b *lib.Block, id lib.HexBytes) lib.ErrorI {
	diff, staged := e.pendingDiffs.Take(id)
	if !staged {
		var err lib.ErrorI
		diff, err = e.ctrl.ExecuteBlock(b)
		if err != nil {
			return err
		}
	}
	if err := e.subStore.ApplyBlockDiff(b.Header.ShardGroup, diff, e.tree); err != nil {
		return err
	}
	for _, cmd := range b.Commands {
		switch {
		case cmd.TxID() != "":
			if err := e.pool.ApplyCommand(cmd, true); err != nil {
				return err
			}
			if entry, ok := e.pool.Get(cmd.TxID()); ok && entry.Stage.IsAccepted() {
				e.pool.Evict(cmd.TxID())
			}
		case cmd.Kind == lib.CmdEvictNode:
			if err := e.blocks.RecordEvicted(b.Header.Epoch, cmd.EvictPublicKey, id); err != nil {
				return err
			}
		case cmd.Kind == lib.CmdEndEpoch:
			if err := e.writeEpochCheckpoint(b, id); err != nil {
				return err
			}
		case cmd.Kind == lib.CmdMintConfidentialOutput:
			// the minted commitment is already folded into diff.Ups by the
			// execution collaborator, applied above; nothing further at
			// commit time, §4.5.
		}
	}
	if err := e.blocks.CreditParticipation(b.Header.Epoch, b.Header.ProposedBy); err != nil {
		return err
	}
	if err := e.blocks.SetCommitted(id); err != nil {
		return err
	}
	e.safety.LastExecuted = &lib.View{Height: b.Header.Height, Epoch: b.Header.Epoch, ShardGroup: b.Header.ShardGroup, Phase: lib.Commit}
	if err := e.singletons.AppendLastExecuted(b.Header.Epoch, b.Header.Height, e.safety.LastExecuted); err != nil {
		return err
	}
	if err := e.ctrl.CommitBlock(b); err != nil {
		return err
	}
	if len(b.Header.ParentID) > 0 {
		pruned, perr := e.blocks.Prune(b.Header.ParentID, id)
		if perr != nil {
			return perr
		}
		e.pendingDiffs.Purge(pruned)
	}
	return nil
}

// writeEpochCheckpoint implements spec §4.5: committing an EndEpoch command
// writes an epoch_checkpoint row with the commit block's hash, the QC that
// justified it, and this shard's live-state root, so a later proposal for
// the same (epoch, shard_group) is rejected by admitProposal.
func (e *Engine) writeEpochCheckpoint(b *lib.Block, id lib.HexBytes) lib.ErrorI {
	cp, err := e.blocks.EpochCheckpoint(b.Header.Epoch)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &blockstore.EpochCheckpoint{Epoch: b.Header.Epoch, PerShardRoots: make(map[uint64]lib.HexBytes)}
	}
	cp.CommitBlockID = id
	if b.Justify != nil {
		cp.QCs = append(cp.QCs, b.Justify)
	}
	cp.PerShardRoots[b.Header.ShardGroup] = e.tree.Root()
	return e.blocks.WriteEpochCheckpoint(*cp)
}
