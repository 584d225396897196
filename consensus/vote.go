package consensus

import (
	"context"
	"sync"

	"github.com/leet4tari/tari-dan/lib"
)

/*
Vote evaluation, safety predicate and QC aggregation, spec §4.1 "Safety
rules for voting" and the teacher's SafeNode predicate (bft/bft.go), here
collapsed to the spec's chained rule: no separate SortitionData/VDF
justification, only the locked-block / high-QC comparison.
*/

// canVote implements spec §4.1 "Vote for B iff (i) B.height > LastVoted.height,
// AND (ii) either B extends LockedBlock OR B.justify.height > LockedBlock.height."
func (e *Engine) canVote(b *lib.Block) bool {
	if e.safety.LastVoted != nil && b.Header.Height <= e.safety.LastVoted.Height {
		return false
	}
	if e.safety.LockedBlock == nil {
		return true
	}
	if e.extendsLocked(b) {
		return true
	}
	return b.Justify != nil && b.Justify.Height > e.safety.LockedBlock.Height
}

// extendsLocked reports whether LockedBlock.id appears in b's parent chain,
// walking the block store up to a bounded depth (the locked block is
// always within a few heights of the current proposal in a live chain).
func (e *Engine) extendsLocked(b *lib.Block) bool {
	if e.safety.LockedBlock == nil {
		return false
	}
	cur := b
	for depth := 0; depth < 64 && cur != nil; depth++ {
		if cur.Header.ParentID == nil {
			return false
		}
		parent, err := e.blocks.Get(cur.Header.ParentID)
		if err != nil {
			return false
		}
		if bytesEqual(parent.Hash(), hashOf(e.safety.LockedBlock)) {
			return true
		}
		cur = parent
	}
	return false
}

func hashOf(h *lib.BlockHeader) lib.HexBytes {
	b := &lib.Block{Header: h}
	return b.Hash()
}

// castVote signs and emits a VoteMessage, records LastVoted, and enforces
// §5 O3 "a voter signs at most one vote per (epoch, block_id)" via the
// SingletonStore-backed last_sent_vote guard.
func (e *Engine) castVote(b *lib.Block, phase lib.Phase) lib.ErrorI {
	blockID := b.Hash()
	key := VoteKey(b.Header.Epoch, blockID)
	sent, err := e.singletons.HasVoteSent(key)
	if err != nil {
		return err
	}
	if sent {
		return lib.ErrAlreadyVoted()
	}
	vote := &lib.VoteMessage{View: lib.View{Height: b.Header.Height, Epoch: b.Header.Epoch, ShardGroup: b.Header.ShardGroup, Phase: phase}, HeaderHash: blockID, Decision: lib.DecisionAccept}
	sig, serr := e.ctrl.Sign(vote.SignBytes())
	if serr != nil {
		return serr
	}
	vote.Signature = sig
	vote.SignerPublicKey = lib.HexBytes(e.ctrl.PublicKey())

	e.safety.LastVoted = &lib.View{Height: b.Header.Height, Epoch: b.Header.Epoch, ShardGroup: b.Header.ShardGroup, Phase: phase}
	if err := e.singletons.MarkVoteSent(key); err != nil {
		return err
	}
	if err := e.singletons.AppendLastVoted(b.Header.Epoch, b.Header.Height, e.safety.LastVoted); err != nil {
		return err
	}
	e.ctrl.SendVote(vote)
	return nil
}

// singleSignerBitmap builds the one-bit-set bitmap that lets a single
// replica's signature be checked through the same aggregate-verify call
// used for whole QCs: an "aggregate" over exactly one committee member is
// just that member's own signature.
func singleSignerBitmap(idx, n int) []byte {
	bitmap := make([]byte, (n+7)/8)
	bitmap[idx/8] |= 1 << uint(idx%8)
	return bitmap
}

// OnVote accumulates a replica's vote as the leader. Once the raw voting
// power of the accumulated votes reaches quorum, each vote's signature is
// verified in parallel (§5 "Parallelism is exploited for... cryptographic
// verification of incoming QCs and votes") before the verified subset is
// aggregated into a QC, so a single forged or malformed vote cannot poison
// the QC the leader signs off on.
func (e *Engine) OnVote(vote *lib.VoteMessage) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()

	committee, err := e.ctrl.Oracle().Committee(vote.View.Epoch, vote.View.ShardGroup)
	if err != nil {
		return err
	}
	if committee.IndexOf(vote.SignerPublicKey) < 0 {
		return lib.ErrUnknownCommittee(vote.View.Epoch, vote.View.ShardGroup)
	}

	key := vote.HeaderHash.String()
	e.pendingVotes[key] = append(e.pendingVotes[key], vote)

	votedPower := uint64(0)
	for _, v := range e.pendingVotes[key] {
		if idx := committee.IndexOf(v.SignerPublicKey); idx >= 0 {
			votedPower += committee.VotingPower[idx]
		}
	}
	if votedPower < committee.QuorumThreshold {
		return nil // not yet at quorum
	}

	votes := e.pendingVotes[key]
	delete(e.pendingVotes, key)

	verified := make([]bool, len(votes))
	var verifyMu sync.Mutex
	ctx := context.Background()
	for i, v := range votes {
		i, v := i, v
		idx := committee.IndexOf(v.SignerPublicKey)
		if idx < 0 {
			continue
		}
		bitmap := singleSignerBitmap(idx, len(committee.PublicKeys))
		e.verifyAsync(ctx, func() error {
			ok, _, verr := e.verifier.Verify(v.SignBytes(), v.Signature, bitmap,
				committee.PublicKeys, committee.VotingPower, committee.VotingPower[idx], committee.TotalVotingPower)
			if verr != nil {
				return verr
			}
			verifyMu.Lock()
			verified[i] = ok
			verifyMu.Unlock()
			return nil
		})
	}
	if err := e.Drain(); err != nil {
		return lib.NewError(lib.CodeInvalidSignature, lib.ConsensusModule, err.Error())
	}

	aggBitmap := make([]byte, (len(committee.PublicKeys)+7)/8)
	var sigs [][]byte
	aggVotedPower := uint64(0)
	for i, v := range votes {
		if !verified[i] {
			continue
		}
		idx := committee.IndexOf(v.SignerPublicKey)
		aggBitmap[idx/8] |= 1 << uint(idx%8)
		sigs = append(sigs, v.Signature)
		aggVotedPower += committee.VotingPower[idx]
	}
	if aggVotedPower < committee.QuorumThreshold {
		return lib.ErrNoMaj23()
	}
	aggSig, aerr := e.verifier.Aggregate(sigs, aggBitmap, committee.PublicKeys)
	if aerr != nil {
		return lib.NewError(lib.CodeInvalidSignature, lib.ConsensusModule, aerr.Error())
	}

	qc := &lib.QuorumCertificate{
		HeaderHash: vote.HeaderHash, Height: vote.View.Height, Epoch: vote.View.Epoch,
		ShardGroup: vote.View.ShardGroup, Phase: vote.View.Phase, Decision: vote.Decision,
		Signature: &lib.AggregateSignature{Signature: aggSig, Bitmap: aggBitmap},
	}
	return e.onQCLocked(qc)
}
